package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/itemid"
)

// PID identifies a client process. Zero means "no process".
type PID uint32

// InvalidID is the reserved subscription id of an unused registry slot.
const InvalidID uint32 = 0

// EventMask is a bitset of change kinds.
type EventMask uint32

const (
	EventRenameItem       EventMask = 0x00000001
	EventCreate           EventMask = 0x00000002
	EventDelete           EventMask = 0x00000004
	EventMkDir            EventMask = 0x00000008
	EventRmDir            EventMask = 0x00000010
	EventMediaInserted    EventMask = 0x00000020
	EventMediaRemoved     EventMask = 0x00000040
	EventDriveRemoved     EventMask = 0x00000080
	EventDriveAdd         EventMask = 0x00000100
	EventNetShare         EventMask = 0x00000200
	EventNetUnshare       EventMask = 0x00000400
	EventAttributes       EventMask = 0x00000800
	EventUpdateDir        EventMask = 0x00001000
	EventUpdateItem       EventMask = 0x00002000
	EventServerDisconnect EventMask = 0x00004000
	EventUpdateImage      EventMask = 0x00008000
	EventDriveAddGUI      EventMask = 0x00010000
	EventRenameFolder     EventMask = 0x00020000
	EventFreeSpace        EventMask = 0x00040000
	EventExtendedEvent    EventMask = 0x04000000
	EventAssocChanged     EventMask = 0x08000000

	// EventDiskEvents covers changes that originate on a volume.
	EventDiskEvents EventMask = 0x0002381F
	// EventGlobal covers events that are not tied to a single item; a
	// ticket carrying any of these bits bypasses scope matching.
	EventGlobal EventMask = 0x0C0581E0
	// EventAll is every non-reserved event kind.
	EventAll EventMask = 0x7FFFFFFF
	// EventInterrupt marks tickets generated by directory watchers.
	EventInterrupt EventMask = 0x80000000
)

var eventNames = map[string]EventMask{
	"rename":            EventRenameItem,
	"create":            EventCreate,
	"delete":            EventDelete,
	"mkdir":             EventMkDir,
	"rmdir":             EventRmDir,
	"media-inserted":    EventMediaInserted,
	"media-removed":     EventMediaRemoved,
	"drive-removed":     EventDriveRemoved,
	"drive-add":         EventDriveAdd,
	"net-share":         EventNetShare,
	"net-unshare":       EventNetUnshare,
	"attributes":        EventAttributes,
	"update-dir":        EventUpdateDir,
	"update-item":       EventUpdateItem,
	"server-disconnect": EventServerDisconnect,
	"update-image":      EventUpdateImage,
	"drive-add-gui":     EventDriveAddGUI,
	"rename-folder":     EventRenameFolder,
	"free-space":        EventFreeSpace,
	"extended":          EventExtendedEvent,
	"assoc-changed":     EventAssocChanged,
	"disk":              EventDiskEvents,
	"global":            EventGlobal,
	"all":               EventAll,
}

// ParseEventMask ORs together named event kinds ("create", "delete",
// "all", ...). Names are case-insensitive.
func ParseEventMask(names []string) (EventMask, error) {
	var mask EventMask
	for _, name := range names {
		bit, ok := eventNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown event kind: %s", name)
		}
		mask |= bit
	}
	return mask, nil
}

// Has reports whether any bit of other is set in m.
func (m EventMask) Has(other EventMask) bool {
	return m&other != 0
}

// IsInterrupt reports whether the mask carries the interrupt bit.
func (m EventMask) IsInterrupt() bool {
	return m&EventInterrupt != 0
}

// IsGlobal reports whether the mask carries a global event bit.
func (m EventMask) IsGlobal() bool {
	return m&EventGlobal != 0
}

// String lists the single-bit event names set in m.
func (m EventMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for name, bit := range eventNames {
		if bit&(bit-1) != 0 {
			continue
		}
		if m&bit != 0 {
			parts = append(parts, name)
		}
	}
	sort.Strings(parts)
	if m.IsInterrupt() {
		parts = append(parts, "interrupt")
	}
	return strings.Join(parts, "|")
}

// Sources selects which producers a subscription listens to.
type Sources uint32

const (
	// SourceInterrupt receives tickets produced by directory watchers.
	SourceInterrupt Sources = 0x0001
	// SourceShell receives tickets produced by clients.
	SourceShell Sources = 0x0002
	// SourceRecursiveInterrupt asks for interrupt events below the scope.
	SourceRecursiveInterrupt Sources = 0x1000
	// SourceNewDelivery asks for ticket-handle delivery.
	SourceNewDelivery Sources = 0x8000
)

// Has reports whether any bit of other is set in s.
func (s Sources) Has(other Sources) bool {
	return s&other != 0
}

// RegEntry is the payload a client hands to the broker to subscribe.
type RegEntry struct {
	// ID is assigned by the broker when the caller passes InvalidID.
	ID uint32
	// Target is the sink handle deliveries are sent to.
	Target uint64
	// Message is echoed back on every delivery.
	Message uint32
	// Broker is an optional secondary sink handle, used when Target cannot
	// be addressed.
	Broker    uint64
	Sources   Sources
	Events    EventMask
	Scope     itemid.ItemID
	Recursive bool
}

// Ticket describes one change. Path2 is set for two-endpoint events such
// as renames.
type Ticket struct {
	Events  EventMask
	Path1   itemid.ItemID
	Path2   itemid.ItemID
	TraceID string
	Time    time.Time
}
