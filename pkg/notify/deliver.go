package notify

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/payload"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/sink"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// deliverAndFree runs one delivery pass and then frees the ticket. The
// ticket is freed exactly once even when it failed validation.
func (s *Server) deliverAndFree(h shm.Handle, producer types.PID) (bool, error) {
	ok, err := s.deliver(h, producer)
	if ferr := s.gw.Free(h, producer); ferr != nil {
		s.logger.Warn().Err(ferr).
			Uint64("ticket", uint64(h)).
			Uint32("producer", uint32(producer)).
			Msg("failed to free ticket")
	}
	return ok, err
}

// deliver matches the ticket against every live subscription in order and
// sends a notification to each match. A failed send is logged and counted
// and never stops the pass.
func (s *Server) deliver(h shm.Handle, producer types.PID) (bool, error) {
	tv, err := payload.MapTicket(s.gw, h, producer)
	if err != nil {
		metrics.DeliveryPassesTotal.WithLabelValues("invalid_payload").Inc()
		s.feed.Publish(&events.Event{
			Type:    events.EventDeliveryRejected,
			PID:     uint32(producer),
			Message: err.Error(),
		})
		s.logger.Warn().Err(err).Uint32("producer", uint32(producer)).Msg("rejected ticket")
		return false, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	defer tv.Release()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DeliveryPassDuration)

	ticket := &tv.Ticket
	logger := log.WithTraceID(s.logger, ticket.TraceID).With().
		Uint32("producer", uint32(producer)).
		Logger()

	var matched, failed int
	s.reg.each(func(sub *Subscription) {
		ev, err := payload.MapRegEntry(s.gw, sub.Entry, s.cfg.PID, false)
		if err != nil {
			logger.Warn().Err(err).Uint32("subscription_id", sub.ID).Msg("subscription clone unreadable")
			return
		}
		defer ev.Release()

		if !ShouldNotify(ticket, &ev.Entry) {
			return
		}
		matched++

		n := sink.Notification{
			Message:  ev.Entry.Message,
			Ticket:   h,
			Producer: producer,
		}
		if err := s.send(&ev.Entry, n); err != nil {
			failed++
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			s.feed.Publish(&events.Event{
				Type:           events.EventDeliveryFailed,
				SubscriptionID: sub.ID,
				PID:            uint32(sub.TargetPID),
				Message:        err.Error(),
			})
			logger.Warn().Err(err).Uint32("subscription_id", sub.ID).Msg("delivery failed")
			return
		}
		metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
		logger.Debug().Uint32("subscription_id", sub.ID).Msg("delivered")
	})

	metrics.DeliveryPassesTotal.WithLabelValues("ok").Inc()
	s.feed.Publish(&events.Event{
		Type:    events.EventDeliveryCompleted,
		PID:     uint32(producer),
		Message: ticket.Path1.String(),
		Metadata: map[string]string{
			"trace_id": ticket.TraceID,
			"events":   ticket.Events.String(),
			"matched":  fmt.Sprint(matched),
			"failed":   fmt.Sprint(failed),
		},
	})
	logPass(logger, ticket, matched, failed)
	return true, nil
}

// send hands n to the subscription's target, falling back to its broker
// sink when the target is gone. A target that does not answer within the
// delivery timeout is abandoned and counted as unreachable.
func (s *Server) send(entry *types.RegEntry, n sink.Notification) error {
	target, _, ok := s.sinks.Lookup(sink.Handle(entry.Target))
	if !ok && entry.Broker != 0 {
		target, _, ok = s.sinks.Lookup(sink.Handle(entry.Broker))
	}
	if !ok {
		return fmt.Errorf("%w: no sink for handle %d", ErrTargetUnreachable, entry.Target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliveryTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink panicked: %v", r)
			}
		}()
		done <- target.Deliver(ctx, n)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTargetUnreachable, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTargetUnreachable, ctx.Err())
	}
}

func logPass(logger zerolog.Logger, t *types.Ticket, matched, failed int) {
	e := logger.Debug()
	if failed > 0 {
		e = logger.Info()
	}
	e.Str("events", t.Events.String()).
		Str("path1", t.Path1.String()).
		Str("path2", t.Path2.String()).
		Int("matched", matched).
		Int("failed", failed).
		Msg("delivery pass complete")
}
