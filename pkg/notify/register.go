package notify

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/payload"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/sink"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/watch"
)

// register handles one registration request. The caller's payload stays
// the caller's; the registry keeps a broker-owned clone.
func (s *Server) register(h shm.Handle, owner types.PID) (uint32, error) {
	logger := log.WithPID(s.logger, uint32(owner))

	v, err := payload.MapRegEntry(s.gw, h, owner, true)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid_payload").Inc()
		s.feed.Publish(&events.Event{
			Type:    events.EventSubscriptionRejected,
			PID:     uint32(owner),
			Message: err.Error(),
		})
		logger.Warn().Err(err).Msg("rejected registration payload")
		return types.InvalidID, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	defer v.Release()

	entry := &v.Entry
	if entry.ID == types.InvalidID {
		entry.ID = s.reg.NextID()
	}
	logger = log.WithSubscriptionID(logger, entry.ID)

	var targetPID types.PID
	if _, pid, ok := s.sinks.Lookup(sink.Handle(entry.Target)); ok {
		targetPID = pid
	} else {
		logger.Warn().Uint64("target", entry.Target).Msg("delivery target is not known")
	}

	clone, err := payload.AllocRegEntry(s.gw, *entry, s.cfg.PID)
	if err != nil {
		return s.rejectRegistration(v, owner, "alloc_failed", fmt.Errorf("%w: %w", ErrAllocationFailed, err))
	}

	var watcher *watch.Watcher
	if entry.Scope != nil && entry.Sources.Has(types.SourceInterrupt) {
		watcher, err = s.startWatch(entry)
		if err != nil {
			s.freeClone(clone)
			return s.rejectRegistration(v, owner, "watch_failed", fmt.Errorf("%w: %w", ErrWatchStartFailed, err))
		}
	}

	if err := v.Commit(); err != nil {
		if watcher != nil {
			watcher.RequestStop()
		}
		s.freeClone(clone)
		return s.rejectRegistration(v, owner, "alloc_failed", fmt.Errorf("%w: %w", ErrAllocationFailed, err))
	}

	sub := Subscription{
		ID:        entry.ID,
		OwnerPID:  owner,
		TargetPID: targetPID,
		Entry:     clone,
		Broker:    sink.Handle(entry.Broker),
	}
	// A nil *watch.Watcher must not become a non-nil Stopper.
	if watcher != nil {
		sub.Watcher = watcher
	}
	s.reg.Add(sub)

	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	s.feed.Publish(&events.Event{
		Type:           events.EventSubscriptionRegistered,
		SubscriptionID: entry.ID,
		PID:            uint32(owner),
		Message:        entry.Scope.String(),
		Metadata: map[string]string{
			"events":    entry.Events.String(),
			"recursive": fmt.Sprint(entry.Recursive),
		},
	})
	logger.Info().
		Str("scope", entry.Scope.String()).
		Str("events", entry.Events.String()).
		Bool("recursive", entry.Recursive).
		Bool("watching", watcher != nil).
		Msg("subscription registered")

	return entry.ID, nil
}

func (s *Server) startWatch(entry *types.RegEntry) (*watch.Watcher, error) {
	dir, err := s.resolver.ResolveDir(entry.Scope)
	if err != nil {
		return nil, err
	}
	// Only the subscription's own flag decides the watch shape so that
	// the watcher reports paths the matcher will accept.
	return s.watches.StartWatch(dir, entry.Scope, entry.Recursive)
}

// rejectRegistration rolls the caller's id back to the sentinel so the
// caller sees the failure in its own payload.
func (s *Server) rejectRegistration(v *payload.RegEntryView, owner types.PID, result string, cause error) (uint32, error) {
	id := v.Entry.ID
	v.Entry.ID = types.InvalidID
	if err := v.Commit(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to roll back subscription id")
	}

	metrics.RegistrationsTotal.WithLabelValues(result).Inc()
	s.feed.Publish(&events.Event{
		Type:           events.EventSubscriptionRejected,
		SubscriptionID: id,
		PID:            uint32(owner),
		Message:        cause.Error(),
	})
	logger := log.WithSubscriptionID(log.WithPID(s.logger, uint32(owner)), id)
	logger.Warn().Err(cause).Msg("registration rejected")

	return types.InvalidID, cause
}

func (s *Server) freeClone(h shm.Handle) {
	if err := s.gw.Free(h, s.cfg.PID); err != nil {
		s.logger.Warn().Err(err).Uint64("clone", uint64(h)).Msg("failed to free subscription clone")
	}
}
