package notify

import (
	"testing"

	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestShouldNotify(t *testing.T) {
	ab := itemid.MustParse("/a/b")

	tests := []struct {
		name   string
		ticket types.Ticket
		entry  types.RegEntry
		want   bool
	}{
		{
			name:   "recursive matches scope itself",
			ticket: types.Ticket{Events: types.EventUpdateItem, Path1: ab},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateItem, Scope: ab, Recursive: true},
			want:   true,
		},
		{
			name:   "recursive matches child",
			ticket: types.Ticket{Events: types.EventUpdateItem, Path1: itemid.MustParse("/a/b/c")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateItem, Scope: ab, Recursive: true},
			want:   true,
		},
		{
			name:   "recursive matches grandchild",
			ticket: types.Ticket{Events: types.EventUpdateItem, Path1: itemid.MustParse("/a/b/c/d")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateItem, Scope: ab, Recursive: true},
			want:   true,
		},
		{
			name:   "recursive matches on second path",
			ticket: types.Ticket{Events: types.EventRenameItem, Path1: itemid.MustParse("/x/y"), Path2: itemid.MustParse("/a/b/y")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventRenameItem, Scope: ab, Recursive: true},
			want:   true,
		},
		{
			name:   "recursive ignores sibling",
			ticket: types.Ticket{Events: types.EventUpdateItem, Path1: itemid.MustParse("/a/bc")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateItem, Scope: ab, Recursive: true},
			want:   false,
		},
		{
			name:   "non-recursive matches scope itself",
			ticket: types.Ticket{Events: types.EventUpdateDir, Path1: ab},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateDir, Scope: ab},
			want:   true,
		},
		{
			name:   "non-recursive ignores child",
			ticket: types.Ticket{Events: types.EventUpdateItem, Path1: itemid.MustParse("/a/b/c")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateItem, Scope: ab},
			want:   false,
		},
		{
			name:   "non-recursive matches shallower path",
			ticket: types.Ticket{Events: types.EventUpdateDir, Path1: itemid.MustParse("/a")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventUpdateDir, Scope: ab},
			want:   true,
		},
		{
			name:   "non-recursive matches shallower second path",
			ticket: types.Ticket{Events: types.EventRenameFolder, Path1: itemid.MustParse("/x"), Path2: itemid.MustParse("/a")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventRenameFolder, Scope: ab},
			want:   true,
		},
		{
			name:   "event masks must intersect",
			ticket: types.Ticket{Events: types.EventDelete, Path1: ab},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventCreate, Scope: ab, Recursive: true},
			want:   false,
		},
		{
			name:   "no scope matches everything",
			ticket: types.Ticket{Events: types.EventCreate, Path1: itemid.MustParse("/z")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventAll},
			want:   true,
		},
		{
			name:   "global event ignores scope",
			ticket: types.Ticket{Events: types.EventFreeSpace, Path1: itemid.MustParse("/elsewhere")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventFreeSpace, Scope: ab},
			want:   true,
		},
		{
			name:   "global event still needs intersecting mask",
			ticket: types.Ticket{Events: types.EventFreeSpace, Path1: itemid.MustParse("/elsewhere")},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventCreate, Scope: ab},
			want:   false,
		},
		{
			name:   "interrupt ticket needs interrupt source",
			ticket: types.Ticket{Events: types.EventCreate | types.EventInterrupt, Path1: ab},
			entry:  types.RegEntry{Sources: types.SourceShell, Events: types.EventCreate, Scope: ab, Recursive: true},
			want:   false,
		},
		{
			name:   "interrupt ticket needs a scope",
			ticket: types.Ticket{Events: types.EventCreate | types.EventInterrupt, Path1: ab},
			entry:  types.RegEntry{Sources: types.SourceInterrupt, Events: types.EventCreate},
			want:   false,
		},
		{
			name:   "interrupt ticket matches interrupt source",
			ticket: types.Ticket{Events: types.EventCreate | types.EventInterrupt, Path1: itemid.MustParse("/a/b/new")},
			entry:  types.RegEntry{Sources: types.SourceInterrupt, Events: types.EventCreate, Scope: ab, Recursive: true},
			want:   true,
		},
		{
			name:   "shell ticket needs shell source",
			ticket: types.Ticket{Events: types.EventCreate, Path1: ab},
			entry:  types.RegEntry{Sources: types.SourceInterrupt, Events: types.EventCreate, Scope: ab, Recursive: true},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotify(&tt.ticket, &tt.entry))
		})
	}
}
