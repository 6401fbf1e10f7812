package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/types"
)

// Handle names a sink in the Table. Zero is never a valid handle.
type Handle uint64

// ErrClosed is returned by sinks that no longer accept notifications.
var ErrClosed = errors.New("sink closed")

// Notification is what a subscriber receives for one matching ticket. The
// ticket is only valid until Deliver returns or ctx is done, whichever
// comes first.
type Notification struct {
	Message  uint32
	Ticket   shm.Handle
	Producer types.PID
}

// Sink receives notifications in the subscriber's process. Deliver must
// honour ctx and must not call back into the broker synchronously. The
// broker stops waiting once ctx is done.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, n Notification) error

// Deliver implements Sink.
func (f Func) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

type entry struct {
	pid  types.PID
	sink Sink
}

// Table maps handles to sinks and the process that owns each. It is safe
// for concurrent use.
type Table struct {
	mu      sync.RWMutex
	next    Handle
	entries map[Handle]entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Handle]entry)}
}

// Add registers s as owned by pid and returns its handle.
func (t *Table) Add(pid types.PID, s Sink) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.entries[t.next] = entry{pid: pid, sink: s}
	return t.next
}

// Lookup returns the sink and owning process for h.
func (t *Table) Lookup(h Handle) (Sink, types.PID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[h]
	return e.sink, e.pid, ok
}

// Remove destroys h. It reports whether h existed.
func (t *Table) Remove(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[h]; !ok {
		return false
	}
	delete(t.entries, h)
	return true
}

// RemoveProcess destroys every sink owned by pid and returns how many were
// removed.
func (t *Table) RemoveProcess(pid types.PID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for h, e := range t.entries {
		if e.pid == pid {
			delete(t.entries, h)
			n++
		}
	}
	return n
}

// Len returns the number of live sinks.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
