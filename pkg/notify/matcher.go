package notify

import "github.com/cuemby/burrow/pkg/types"

// ShouldNotify decides whether ticket t is delivered to the subscription
// described by e. The first failing test wins:
//
//  1. interrupt tickets need an interrupt-level subscription with a scope
//  2. other tickets need a shell-level subscription
//  3. the event masks must intersect
//  4. no scope, or a global event: match
//  5. recursive: the scope contains either path (equal counts)
//  6. otherwise: path1 equals the scope, or either path is a strict
//     ancestor of the scope (a change reported against a shallower item)
func ShouldNotify(t *types.Ticket, e *types.RegEntry) bool {
	if t.Events.IsInterrupt() {
		if !e.Sources.Has(types.SourceInterrupt) || e.Scope == nil {
			return false
		}
	} else if !e.Sources.Has(types.SourceShell) {
		return false
	}

	if !t.Events.Has(e.Events) {
		return false
	}

	if e.Scope == nil || t.Events.IsGlobal() {
		return true
	}

	if e.Recursive {
		return e.Scope.Contains(t.Path1) ||
			(t.Path2 != nil && e.Scope.Contains(t.Path2))
	}

	return e.Scope.Equal(t.Path1) ||
		t.Path1.IsAncestorOf(e.Scope) ||
		(t.Path2 != nil && t.Path2.IsAncestorOf(e.Scope))
}
