package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/fxamacker/cbor/v2"
)

// Magic tags identify the payload kind in the first four bytes.
const (
	RegEntryMagic uint32 = 0x42524547 // "BREG"
	TicketMagic   uint32 = 0x42544B54 // "BTKT"

	// Version is the only body layout this package reads or writes.
	Version uint16 = 1

	headerSize = 6
)

var (
	// ErrInvalid is the root of every validation failure.
	ErrInvalid = errors.New("invalid payload")
	// ErrBadMagic is returned when the tag does not match the expected kind.
	ErrBadMagic = fmt.Errorf("%w: magic mismatch", ErrInvalid)
	// ErrBadVersion is returned for an unsupported layout version.
	ErrBadVersion = fmt.Errorf("%w: unsupported version", ErrInvalid)
)

// encMode uses Core Deterministic Encoding so equal payloads produce equal
// bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("payload: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("payload: CBOR decoder initialization failed: " + err.Error())
	}
}

type regEntryWire struct {
	ID        uint32 `cbor:"id"`
	Target    uint64 `cbor:"target"`
	Message   uint32 `cbor:"message"`
	Broker    uint64 `cbor:"broker,omitempty"`
	Sources   uint32 `cbor:"sources"`
	Events    uint32 `cbor:"events"`
	Scope     string `cbor:"scope,omitempty"`
	Recursive bool   `cbor:"recursive,omitempty"`
}

type ticketWire struct {
	Events  uint32 `cbor:"events"`
	Path1   string `cbor:"path1,omitempty"`
	Path2   string `cbor:"path2,omitempty"`
	TraceID string `cbor:"trace_id,omitempty"`
	Time    int64  `cbor:"time,omitempty"`
}

func seal(magic uint32, body any) ([]byte, error) {
	enc, err := encMode.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	out := make([]byte, headerSize, headerSize+len(enc))
	binary.BigEndian.PutUint32(out[0:4], magic)
	binary.BigEndian.PutUint16(out[4:6], Version)
	return append(out, enc...), nil
}

func unseal(magic uint32, data []byte, body any) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalid, len(data))
	}
	if got := binary.BigEndian.Uint32(data[0:4]); got != magic {
		return fmt.Errorf("%w: got %#08x want %#08x", ErrBadMagic, got, magic)
	}
	if got := binary.BigEndian.Uint16(data[4:6]); got != Version {
		return fmt.Errorf("%w: %d", ErrBadVersion, got)
	}
	if err := decMode.Unmarshal(data[headerSize:], body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// EncodeRegEntry serializes a subscription payload with its tag.
func EncodeRegEntry(e types.RegEntry) ([]byte, error) {
	return seal(RegEntryMagic, regEntryWire{
		ID:        e.ID,
		Target:    e.Target,
		Message:   e.Message,
		Broker:    e.Broker,
		Sources:   uint32(e.Sources),
		Events:    uint32(e.Events),
		Scope:     e.Scope.String(),
		Recursive: e.Recursive,
	})
}

// DecodeRegEntry validates the tag and decodes a subscription payload.
func DecodeRegEntry(data []byte) (types.RegEntry, error) {
	var w regEntryWire
	if err := unseal(RegEntryMagic, data, &w); err != nil {
		return types.RegEntry{}, err
	}
	scope, err := itemid.Parse(w.Scope)
	if err != nil {
		return types.RegEntry{}, fmt.Errorf("%w: scope: %v", ErrInvalid, err)
	}
	return types.RegEntry{
		ID:        w.ID,
		Target:    w.Target,
		Message:   w.Message,
		Broker:    w.Broker,
		Sources:   types.Sources(w.Sources),
		Events:    types.EventMask(w.Events),
		Scope:     scope,
		Recursive: w.Recursive,
	}, nil
}

// EncodeTicket serializes an event ticket with its tag.
func EncodeTicket(t types.Ticket) ([]byte, error) {
	w := ticketWire{
		Events:  uint32(t.Events),
		Path1:   t.Path1.String(),
		Path2:   t.Path2.String(),
		TraceID: t.TraceID,
	}
	if !t.Time.IsZero() {
		w.Time = t.Time.UnixNano()
	}
	return seal(TicketMagic, w)
}

// DecodeTicket validates the tag and decodes an event ticket.
func DecodeTicket(data []byte) (types.Ticket, error) {
	var w ticketWire
	if err := unseal(TicketMagic, data, &w); err != nil {
		return types.Ticket{}, err
	}
	p1, err := itemid.Parse(w.Path1)
	if err != nil {
		return types.Ticket{}, fmt.Errorf("%w: path1: %v", ErrInvalid, err)
	}
	p2, err := itemid.Parse(w.Path2)
	if err != nil {
		return types.Ticket{}, fmt.Errorf("%w: path2: %v", ErrInvalid, err)
	}
	t := types.Ticket{
		Events:  types.EventMask(w.Events),
		Path1:   p1,
		Path2:   p2,
		TraceID: w.TraceID,
	}
	if w.Time != 0 {
		t.Time = time.Unix(0, w.Time)
	}
	return t, nil
}
