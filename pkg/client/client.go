package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/notify"
	"github.com/cuemby/burrow/pkg/payload"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/sink"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Broker is the request surface of the notification broker.
// *notify.Server implements it.
type Broker interface {
	Register(ctx context.Context, h shm.Handle, owner types.PID) (uint32, error)
	Unregister(ctx context.Context, id uint32, owner types.PID) (bool, error)
	Deliver(ctx context.Context, h shm.Handle, owner types.PID) (bool, error)
	RemoveByProcess(ctx context.Context, pid types.PID) error
}

var _ Broker = (*notify.Server)(nil)

// Registration describes a subscription to create.
type Registration struct {
	// Sink receives notifications for this subscription.
	Sink sink.Sink
	// Broker, when set, is a secondary sink used when Sink is gone. It is
	// destroyed together with the subscription.
	Broker  sink.Sink
	ID      uint32
	Message uint32
	Sources types.Sources
	Events  types.EventMask
	Scope   itemid.ItemID
	// Recursive extends the scope to the whole subtree.
	Recursive bool
}

// Client is one process's connection to the broker
type Client struct {
	broker Broker
	gw     shm.Gateway
	sinks  *sink.Table
	pid    types.PID
	logger zerolog.Logger
}

// NewClient creates a client acting as process pid.
func NewClient(broker Broker, gw shm.Gateway, sinks *sink.Table, pid types.PID) *Client {
	return &Client{
		broker: broker,
		gw:     gw,
		sinks:  sinks,
		pid:    pid,
		logger: log.WithPID(log.WithComponent("client"), uint32(pid)),
	}
}

// PID returns the process identity the client acts as.
func (c *Client) PID() types.PID {
	return c.pid
}

// Register creates a subscription and returns its id. The registration
// payload is allocated for the request and freed afterwards.
func (c *Client) Register(ctx context.Context, reg Registration) (uint32, error) {
	if reg.Sink == nil {
		return types.InvalidID, fmt.Errorf("registration requires a sink")
	}

	target := c.sinks.Add(c.pid, reg.Sink)
	var broker sink.Handle
	if reg.Broker != nil {
		broker = c.sinks.Add(c.pid, reg.Broker)
	}

	entry := types.RegEntry{
		ID:        reg.ID,
		Target:    uint64(target),
		Message:   reg.Message,
		Broker:    uint64(broker),
		Sources:   reg.Sources,
		Events:    reg.Events,
		Scope:     reg.Scope,
		Recursive: reg.Recursive,
	}

	h, err := payload.AllocRegEntry(c.gw, entry, c.pid)
	if err != nil {
		c.dropSinks(target, broker)
		return types.InvalidID, fmt.Errorf("failed to allocate registration: %w", err)
	}
	defer func() {
		if err := c.gw.Free(h, c.pid); err != nil {
			c.logger.Warn().Err(err).Msg("failed to free registration payload")
		}
	}()

	id, err := c.broker.Register(ctx, h, c.pid)
	if err != nil {
		c.dropSinks(target, broker)
		return types.InvalidID, fmt.Errorf("failed to register: %w", err)
	}

	// The broker writes the assigned id into the payload as well.
	if v, err := payload.MapRegEntry(c.gw, h, c.pid, false); err == nil {
		if v.Entry.ID != id {
			c.logger.Warn().Uint32("returned", id).Uint32("written", v.Entry.ID).Msg("subscription id mismatch")
		}
		v.Release()
	}

	logger := log.WithSubscriptionID(c.logger, id)
	logger.Debug().Str("scope", reg.Scope.String()).Msg("registered")
	return id, nil
}

// Unregister removes the subscription id. Unknown ids report false.
func (c *Client) Unregister(ctx context.Context, id uint32) (bool, error) {
	found, err := c.broker.Unregister(ctx, id, c.pid)
	if err != nil {
		return false, fmt.Errorf("failed to unregister %d: %w", id, err)
	}
	return found, nil
}

// Notify announces a change. The ticket is handed to the broker, which
// frees it after delivery; it is freed here only if the broker never took
// it.
func (c *Client) Notify(ctx context.Context, events types.EventMask, path1, path2 itemid.ItemID) (bool, error) {
	t := types.Ticket{
		Events:  events &^ types.EventInterrupt,
		Path1:   path1,
		Path2:   path2,
		TraceID: uuid.NewString(),
		Time:    time.Now(),
	}
	h, err := payload.AllocTicket(c.gw, t, c.pid)
	if err != nil {
		return false, fmt.Errorf("failed to allocate ticket: %w", err)
	}

	ok, err := c.broker.Deliver(ctx, h, c.pid)
	if err != nil {
		if errors.Is(err, notify.ErrServerClosed) {
			_ = c.gw.Free(h, c.pid)
		}
		return false, fmt.Errorf("failed to deliver %s: %w", t.TraceID, err)
	}
	return ok, nil
}

// Lock decodes the ticket carried by a notification. It must be called
// from within the sink's Deliver, while the ticket is still live.
func (c *Client) Lock(n sink.Notification) (types.Ticket, error) {
	return Lock(c.gw, n)
}

// Lock decodes the ticket carried by n from gw.
func Lock(gw shm.Gateway, n sink.Notification) (types.Ticket, error) {
	v, err := payload.MapTicket(gw, n.Ticket, n.Producer)
	if err != nil {
		return types.Ticket{}, fmt.Errorf("failed to lock ticket: %w", err)
	}
	defer v.Release()
	return v.Ticket, nil
}

// Close removes every subscription delivering to this process and drops
// its sinks.
func (c *Client) Close(ctx context.Context) error {
	if err := c.broker.RemoveByProcess(ctx, c.pid); err != nil && !errors.Is(err, notify.ErrServerClosed) {
		return fmt.Errorf("failed to remove subscriptions: %w", err)
	}
	n := c.sinks.RemoveProcess(c.pid)
	c.logger.Debug().Int("sinks", n).Msg("client closed")
	return nil
}

func (c *Client) dropSinks(handles ...sink.Handle) {
	for _, h := range handles {
		if h != 0 {
			c.sinks.Remove(h)
		}
	}
}
