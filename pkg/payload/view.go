package payload

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/types"
)

// RegEntryView is a decoded, still-mapped subscription payload. Release
// must be called exactly once; it is safe to defer immediately.
type RegEntryView struct {
	Entry types.RegEntry

	gw   shm.Gateway
	view *shm.View
}

// MapRegEntry maps h, validates its tag and decodes it. On any failure the
// mapping has already been released.
func MapRegEntry(gw shm.Gateway, h shm.Handle, owner types.PID, forWrite bool) (*RegEntryView, error) {
	v, err := gw.Map(h, owner, forWrite)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	entry, err := DecodeRegEntry(v.Bytes())
	if err != nil {
		gw.Unmap(v)
		return nil, err
	}
	return &RegEntryView{Entry: entry, gw: gw, view: v}, nil
}

// Commit writes Entry back into the shared block. The view must have been
// mapped for writing.
func (v *RegEntryView) Commit() error {
	data, err := EncodeRegEntry(v.Entry)
	if err != nil {
		return err
	}
	return v.gw.Write(v.view, data)
}

// Release unmaps the view.
func (v *RegEntryView) Release() {
	if v == nil {
		return
	}
	v.gw.Unmap(v.view)
}

// TicketView is a decoded, still-mapped event ticket.
type TicketView struct {
	Ticket types.Ticket

	gw   shm.Gateway
	view *shm.View
}

// MapTicket maps h read-only, validates its tag and decodes it.
func MapTicket(gw shm.Gateway, h shm.Handle, owner types.PID) (*TicketView, error) {
	v, err := gw.Map(h, owner, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	t, err := DecodeTicket(v.Bytes())
	if err != nil {
		gw.Unmap(v)
		return nil, err
	}
	return &TicketView{Ticket: t, gw: gw, view: v}, nil
}

// Release unmaps the view.
func (v *TicketView) Release() {
	if v == nil {
		return
	}
	v.gw.Unmap(v.view)
}

// AllocRegEntry encodes e into a new block owned by owner.
func AllocRegEntry(gw shm.Gateway, e types.RegEntry, owner types.PID) (shm.Handle, error) {
	data, err := EncodeRegEntry(e)
	if err != nil {
		return 0, err
	}
	return gw.Alloc(data, owner)
}

// AllocTicket encodes t into a new block owned by owner.
func AllocTicket(gw shm.Gateway, t types.Ticket, owner types.PID) (shm.Handle, error) {
	data, err := EncodeTicket(t)
	if err != nil {
		return 0, err
	}
	return gw.Alloc(data, owner)
}
