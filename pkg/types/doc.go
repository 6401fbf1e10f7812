/*
Package types defines the data model shared by burrow's broker, clients and
watchers.

# Core Types

  - PID: identity of a client process; zero is "no process"
  - EventMask: bitset of change kinds, plus the reserved interrupt bit that
    marks watcher-generated tickets and the global composite that bypasses
    scope matching
  - Sources: which producers a subscription listens to (interrupt-level
    watchers, shell-level clients)
  - RegEntry: the subscription payload a client submits
  - Ticket: one change, with up to two item paths

RegEntry and Ticket never cross the shared-memory boundary in this form;
package payload encodes them behind a magic/version tag.

# Event Masks

	mask, err := types.ParseEventMask([]string{"create", "delete", "rename"})
	if mask.Has(types.EventCreate) { ... }

The "global" composite matches every subscription whose own mask
intersects the ticket, whatever its scope. EventAll never includes the
interrupt bit.
*/
package types
