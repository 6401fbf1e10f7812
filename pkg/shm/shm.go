package shm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

// Handle names a shared block. Zero is never a valid handle.
type Handle uint64

var (
	// ErrOutOfMemory is returned when an allocation exceeds the arena quota.
	ErrOutOfMemory = errors.New("shared arena exhausted")
	// ErrNotFound is returned for unknown handles or a wrong owner.
	ErrNotFound = errors.New("shared block not found")
	// ErrReadOnly is returned when writing through a read-only view.
	ErrReadOnly = errors.New("view is read-only")
	// ErrReleased is returned when using a view after Unmap.
	ErrReleased = errors.New("view already released")
)

// Gateway is the cross-process shared-memory allocator and locker. Blocks
// belong to the process that allocated them; every call names that owner.
type Gateway interface {
	Alloc(data []byte, owner types.PID) (Handle, error)
	Map(h Handle, owner types.PID, forWrite bool) (*View, error)
	Write(v *View, data []byte) error
	Unmap(v *View)
	Free(h Handle, owner types.PID) error
}

type block struct {
	owner  types.PID
	data   []byte
	mapped int
}

// View is a locked mapping of one block.
type View struct {
	handle   Handle
	owner    types.PID
	writable bool
	data     []byte
	released bool
}

// Handle returns the handle the view was mapped from.
func (v *View) Handle() Handle {
	return v.handle
}

// Bytes returns the mapped contents. The slice must not be retained past
// Unmap.
func (v *View) Bytes() []byte {
	return v.data
}

// Arena is an in-process Gateway. It is safe for concurrent use.
type Arena struct {
	mu       sync.Mutex
	next     Handle
	blocks   map[Handle]*block
	used     int
	maxBytes int
}

// NewArena creates an arena. maxBytes <= 0 disables the quota.
func NewArena(maxBytes int) *Arena {
	return &Arena{
		blocks:   make(map[Handle]*block),
		maxBytes: maxBytes,
	}
}

// Alloc copies data into a new block owned by owner.
func (a *Arena) Alloc(data []byte, owner types.PID) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxBytes > 0 && a.used+len(data) > a.maxBytes {
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrOutOfMemory, len(data), a.used, a.maxBytes)
	}

	a.next++
	h := a.next
	a.blocks[h] = &block{
		owner: owner,
		data:  append([]byte(nil), data...),
	}
	a.used += len(data)
	return h, nil
}

// Map locks a block for reading, or for writing when forWrite is set.
func (a *Arena) Map(h Handle, owner types.PID, forWrite bool) (*View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.blocks[h]
	if !ok || b.owner != owner {
		return nil, fmt.Errorf("%w: handle %d owner %d", ErrNotFound, h, owner)
	}
	b.mapped++
	return &View{
		handle:   h,
		owner:    owner,
		writable: forWrite,
		data:     append([]byte(nil), b.data...),
	}, nil
}

// Write replaces the contents of the block behind a writable view.
func (a *Arena) Write(v *View, data []byte) error {
	if v == nil || v.released {
		return ErrReleased
	}
	if !v.writable {
		return ErrReadOnly
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.blocks[v.handle]
	if !ok || b.owner != v.owner {
		return fmt.Errorf("%w: handle %d", ErrNotFound, v.handle)
	}
	grow := len(data) - len(b.data)
	if a.maxBytes > 0 && grow > 0 && a.used+grow > a.maxBytes {
		return fmt.Errorf("%w: cannot grow block %d by %d bytes", ErrOutOfMemory, v.handle, grow)
	}
	b.data = append(b.data[:0:0], data...)
	a.used += grow
	v.data = append([]byte(nil), data...)
	return nil
}

// Unmap releases a view. Releasing nil or an already released view is a
// no-op.
func (a *Arena) Unmap(v *View) {
	if v == nil || v.released {
		return
	}
	v.released = true
	v.data = nil

	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.blocks[v.handle]; ok && b.mapped > 0 {
		b.mapped--
	}
}

// Free releases a block. Freeing an unknown handle, or with the wrong
// owner, returns ErrNotFound and changes nothing.
func (a *Arena) Free(h Handle, owner types.PID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.blocks[h]
	if !ok || b.owner != owner {
		return fmt.Errorf("%w: handle %d owner %d", ErrNotFound, h, owner)
	}
	a.used -= len(b.data)
	delete(a.blocks, h)
	return nil
}

// Stats is a point-in-time view of arena usage.
type Stats struct {
	Blocks int
	Mapped int
	Bytes  int
}

// Stats returns the number of live blocks, outstanding mappings and bytes.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{Blocks: len(a.blocks), Bytes: a.used}
	for _, b := range a.blocks {
		s.Mapped += b.mapped
	}
	return s
}

// Owns reports whether h is a live block owned by owner.
func (a *Arena) Owns(h Handle, owner types.PID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.blocks[h]
	return ok && b.owner == owner
}

var _ Gateway = (*Arena)(nil)
