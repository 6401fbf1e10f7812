package notify

import (
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/payload"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/sink"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Directory resolves sink handles to delivery targets. *sink.Table
// implements it.
type Directory interface {
	Lookup(h sink.Handle) (sink.Sink, types.PID, bool)
	Remove(h sink.Handle) bool
}

// Stopper is the part of a directory watcher the registry needs.
type Stopper interface {
	RequestStop()
}

// Subscription is one registry slot. A slot whose ID is types.InvalidID is
// unused and may be reused by Add.
type Subscription struct {
	ID        uint32
	OwnerPID  types.PID
	TargetPID types.PID
	// Entry is the broker-owned clone of the registration payload.
	Entry shm.Handle
	// Broker is the secondary delivery handle; destroyed with the slot.
	Broker  sink.Handle
	Watcher Stopper
}

// SubscriptionInfo is a read-only description of a live subscription.
type SubscriptionInfo struct {
	ID        uint32
	OwnerPID  types.PID
	TargetPID types.PID
	Events    types.EventMask
	Sources   types.Sources
	Scope     string
	Recursive bool
	Watching  bool
}

// Registry is the ordered set of subscriptions. It is owned by the server
// loop and is not safe for concurrent use.
type Registry struct {
	gw     shm.Gateway
	sinks  Directory
	pid    types.PID
	logger zerolog.Logger

	slots  []Subscription
	live   int
	nextID uint32
}

// NewRegistry creates an empty registry. Clones are freed in gw under pid.
func NewRegistry(gw shm.Gateway, sinks Directory, pid types.PID) *Registry {
	return &Registry{
		gw:     gw,
		sinks:  sinks,
		pid:    pid,
		logger: log.WithComponent("registry"),
	}
}

// NextID returns the next subscription id, skipping the sentinel on wrap.
func (r *Registry) NextID() uint32 {
	r.nextID++
	if r.nextID == types.InvalidID {
		r.nextID++
	}
	return r.nextID
}

// Add stores sub in the first unused slot, or appends it.
func (r *Registry) Add(sub Subscription) {
	defer r.updateGauge()
	r.live++
	for i := range r.slots {
		if r.slots[i].ID == types.InvalidID {
			r.slots[i] = sub
			return
		}
	}
	r.slots = append(r.slots, sub)
}

// RemoveByID tears down every slot carrying id and reports whether any
// was found. Duplicate ids are all removed.
func (r *Registry) RemoveByID(id uint32) bool {
	if id == types.InvalidID {
		return false
	}
	return r.removeWhere(func(s *Subscription) bool { return s.ID == id }) > 0
}

// RemoveByProcess tears down every slot whose delivery target belongs to
// pid. pid 0 removes nothing.
func (r *Registry) RemoveByProcess(pid types.PID) int {
	if pid == 0 {
		return 0
	}
	return r.removeWhere(func(s *Subscription) bool { return s.TargetPID == pid })
}

// RemoveAll tears down every live slot.
func (r *Registry) RemoveAll() int {
	return r.removeWhere(func(*Subscription) bool { return true })
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	return r.live
}

// each calls fn for every live slot in registration order.
func (r *Registry) each(fn func(*Subscription)) {
	for i := range r.slots {
		if r.slots[i].ID == types.InvalidID {
			continue
		}
		fn(&r.slots[i])
	}
}

// Snapshot describes the live subscriptions. Slots whose clone can no
// longer be mapped are listed without payload fields.
func (r *Registry) Snapshot() []SubscriptionInfo {
	infos := make([]SubscriptionInfo, 0, r.live)
	r.each(func(s *Subscription) {
		info := SubscriptionInfo{
			ID:        s.ID,
			OwnerPID:  s.OwnerPID,
			TargetPID: s.TargetPID,
			Watching:  s.Watcher != nil,
		}
		if v, err := payload.MapRegEntry(r.gw, s.Entry, r.pid, false); err == nil {
			info.Events = v.Entry.Events
			info.Sources = v.Entry.Sources
			info.Scope = v.Entry.Scope.String()
			info.Recursive = v.Entry.Recursive
			v.Release()
		}
		infos = append(infos, info)
	})
	return infos
}

func (r *Registry) removeWhere(match func(*Subscription) bool) int {
	var (
		removed   int
		destroyed sink.Handle
	)
	for i := range r.slots {
		s := &r.slots[i]
		if s.ID == types.InvalidID || !match(s) {
			continue
		}
		r.destroy(s, &destroyed)
		removed++
	}
	if removed > 0 {
		r.updateGauge()
	}
	return removed
}

// destroy releases everything a slot holds and resets it to the sentinel.
// destroyed remembers the last broker sink removed in this pass so that
// consecutive slots sharing it destroy it once.
func (r *Registry) destroy(s *Subscription, destroyed *sink.Handle) {
	logger := log.WithSubscriptionID(r.logger, s.ID)

	if s.Broker != 0 && s.Broker != *destroyed {
		r.sinks.Remove(s.Broker)
		*destroyed = s.Broker
	}
	if s.Watcher != nil {
		s.Watcher.RequestStop()
	}
	if s.Entry != 0 {
		if err := r.gw.Free(s.Entry, r.pid); err != nil {
			logger.Warn().Err(err).Msg("failed to free subscription clone")
		}
	}

	logger.Debug().Msg("subscription removed")
	*s = Subscription{}
	r.live--
}

func (r *Registry) updateGauge() {
	metrics.SubscriptionsActive.Set(float64(r.live))
}
