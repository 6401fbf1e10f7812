package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/watch"
	"github.com/rs/zerolog"
)

// Config holds broker settings
type Config struct {
	// PID is the broker's own process identity. Zero uses os.Getpid.
	PID types.PID
	// QueueSize is the capacity of the request channel.
	QueueSize int
	// DeliveryTimeout bounds a single send to one subscriber.
	DeliveryTimeout time.Duration
	// Watch configures the directory watch manager.
	Watch watch.Config
}

// DefaultConfig returns the default broker settings.
func DefaultConfig() Config {
	return Config{
		QueueSize:       64,
		DeliveryTimeout: 2 * time.Second,
		Watch:           watch.DefaultConfig(),
	}
}

// Option configures a Server
type Option func(*Server)

// WithFeed publishes broker activity to feed.
func WithFeed(feed *events.Broker) Option {
	return func(s *Server) {
		s.feed = feed
	}
}

var errAlreadyRunning = errors.New("notify server already running")

type op int

const (
	opRegister op = iota
	opUnregister
	opDeliver
	opRemoveByProcess
	opSuspendResume
	opSnapshot
	opShutdown
)

func (o op) String() string {
	switch o {
	case opRegister:
		return "register"
	case opUnregister:
		return "unregister"
	case opDeliver:
		return "deliver"
	case opRemoveByProcess:
		return "remove_by_process"
	case opSuspendResume:
		return "suspend_resume"
	case opSnapshot:
		return "snapshot"
	case opShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

type request struct {
	op     op
	handle shm.Handle
	pid    types.PID
	id     uint32
	// reply is nil for posted requests.
	reply chan reply
}

type reply struct {
	id   uint32
	ok   bool
	err  error
	subs []SubscriptionInfo
}

func (r request) respond(rep reply) {
	if r.reply != nil {
		r.reply <- rep
	}
}

// Server is the broker. Every request is handled to completion, one at a
// time, by the goroutine running Run; the registry and the delivery
// pipeline are touched by no other goroutine.
//
// Sinks are invoked on that goroutine. A sink must not call back into the
// Server synchronously.
type Server struct {
	cfg      Config
	gw       shm.Gateway
	sinks    Directory
	resolver itemid.Resolver
	reg      *Registry
	watches  *watch.Manager
	feed     *events.Broker
	logger   zerolog.Logger

	requests chan request
	doneCh   chan struct{}
	running  atomic.Bool

	mu     sync.RWMutex
	closed bool
}

// NewServer creates a broker. Call Start or Run to begin serving.
func NewServer(cfg Config, gw shm.Gateway, sinks Directory, resolver itemid.Resolver, opts ...Option) *Server {
	if cfg.PID == 0 {
		cfg.PID = types.PID(os.Getpid())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultConfig().DeliveryTimeout
	}

	s := &Server{
		cfg:      cfg,
		gw:       gw,
		sinks:    sinks,
		resolver: resolver,
		reg:      NewRegistry(gw, sinks, cfg.PID),
		logger:   log.WithPID(log.WithComponent("notify"), uint32(cfg.PID)),
		requests: make(chan request, cfg.QueueSize),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.watches = watch.NewManager(cfg.Watch, gw, cfg.PID, resolver, s)
	s.watches.SetFeed(s.feed)
	return s
}

// PID returns the broker's process identity.
func (s *Server) PID() types.PID {
	return s.cfg.PID
}

// Watches returns the directory watch manager.
func (s *Server) Watches() *watch.Manager {
	return s.watches
}

// Done is closed once the request loop has exited.
func (s *Server) Done() <-chan struct{} {
	return s.doneCh
}

// Start runs the request loop in the background. It is a no-op when the
// loop has already been claimed by Start, Run or Stop.
func (s *Server) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		if err := s.loop(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("broker loop exited")
		}
	}()
}

// Stop shuts the broker down and waits for the loop to exit
func (s *Server) Stop() {
	if s.running.CompareAndSwap(false, true) {
		// Never started: nothing to tear down.
		s.exit()
		return
	}
	if err := s.Shutdown(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("shutdown request failed")
	}
	<-s.doneCh
}

// Run handles requests until Shutdown is processed or ctx is cancelled.
// Cancelling ctx tears the broker down exactly like Shutdown.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	return s.loop(ctx)
}

func (s *Server) loop(ctx context.Context) error {
	defer s.exit()

	s.logger.Info().
		Int("queue_size", s.cfg.QueueSize).
		Dur("delivery_timeout", s.cfg.DeliveryTimeout).
		Msg("broker started")

	for {
		select {
		case req := <-s.requests:
			if s.handle(req) {
				return nil
			}
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		}
	}
}

// Register adds the subscription described by the payload at h, owned by
// owner. The payload is mapped for writing: on success its ID field holds
// the assigned id, on failure the sentinel.
func (s *Server) Register(ctx context.Context, h shm.Handle, owner types.PID) (uint32, error) {
	rep, err := s.call(ctx, request{op: opRegister, handle: h, pid: owner})
	if err != nil {
		return types.InvalidID, err
	}
	return rep.id, rep.err
}

// Unregister removes every subscription carrying id. It reports whether
// any was found; unknown ids report false without error.
func (s *Server) Unregister(ctx context.Context, id uint32, owner types.PID) (bool, error) {
	rep, err := s.call(ctx, request{op: opUnregister, id: id, pid: owner})
	if err != nil {
		return false, err
	}
	return rep.ok, rep.err
}

// Deliver fans the ticket at h, owned by owner, out to every matching
// subscription. Once the request is handled the ticket has been freed,
// whatever the result. If Deliver returns ErrServerClosed the ticket was
// not consumed and still belongs to the caller.
func (s *Server) Deliver(ctx context.Context, h shm.Handle, owner types.PID) (bool, error) {
	rep, err := s.call(ctx, request{op: opDeliver, handle: h, pid: owner})
	if err != nil {
		return false, err
	}
	return rep.ok, rep.err
}

// RemoveByProcess removes every subscription whose delivery target belongs
// to pid.
func (s *Server) RemoveByProcess(ctx context.Context, pid types.PID) error {
	rep, err := s.call(ctx, request{op: opRemoveByProcess, pid: pid})
	if err != nil {
		return err
	}
	return rep.err
}

// SuspendResume is accepted for compatibility and always reports false.
func (s *Server) SuspendResume(ctx context.Context) (bool, error) {
	rep, err := s.call(ctx, request{op: opSuspendResume})
	if err != nil {
		return false, err
	}
	return rep.ok, rep.err
}

// Snapshot lists the live subscriptions.
func (s *Server) Snapshot(ctx context.Context) ([]SubscriptionInfo, error) {
	rep, err := s.call(ctx, request{op: opSnapshot})
	if err != nil {
		return nil, err
	}
	return rep.subs, rep.err
}

// Shutdown removes every subscription, asks every watcher to stop and
// ends the request loop. Shutting down a closed server is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	_, err := s.call(ctx, request{op: opShutdown})
	if errors.Is(err, ErrServerClosed) {
		return nil
	}
	return err
}

// Post enqueues a deliver request without waiting for it. It never blocks:
// a full channel returns ErrQueueFull. On error the ticket still belongs
// to the caller.
func (s *Server) Post(h shm.Handle, owner types.PID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrServerClosed
	}
	select {
	case s.requests <- request{op: opDeliver, handle: h, pid: owner}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Server) call(ctx context.Context, req request) (reply, error) {
	if s.isClosed() {
		return reply{}, ErrServerClosed
	}
	req.reply = make(chan reply, 1)

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-s.doneCh:
		return reply{}, ErrServerClosed
	}

	select {
	case rep := <-req.reply:
		return rep, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-s.doneCh:
		select {
		case rep := <-req.reply:
			return rep, nil
		default:
			return reply{}, ErrServerClosed
		}
	}
}

// handle processes one request and reports whether the loop should exit.
func (s *Server) handle(req request) bool {
	metrics.RequestsTotal.WithLabelValues(req.op.String()).Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, req.op.String())

	switch req.op {
	case opRegister:
		id, err := s.register(req.handle, req.pid)
		req.respond(reply{id: id, ok: err == nil, err: err})
	case opUnregister:
		ok, err := s.unregister(req.id, req.pid)
		req.respond(reply{ok: ok, err: err})
	case opDeliver:
		ok, err := s.deliverAndFree(req.handle, req.pid)
		req.respond(reply{ok: ok, err: err})
	case opRemoveByProcess:
		s.removeByProcess(req.pid)
		req.respond(reply{ok: true})
	case opSuspendResume:
		req.respond(reply{ok: false})
	case opSnapshot:
		req.respond(reply{ok: true, subs: s.reg.Snapshot()})
	case opShutdown:
		s.shutdown()
		req.respond(reply{ok: true})
		return true
	default:
		req.respond(reply{err: fmt.Errorf("unknown request %d", req.op)})
	}
	return false
}

func (s *Server) unregister(id uint32, owner types.PID) (bool, error) {
	if id == types.InvalidID {
		return false, ErrInvalidID
	}
	found := s.reg.RemoveByID(id)
	if found {
		metrics.UnregistrationsTotal.WithLabelValues("unregister").Inc()
		s.feed.Publish(&events.Event{
			Type:           events.EventSubscriptionRemoved,
			SubscriptionID: id,
			PID:            uint32(owner),
			Message:        "unregister",
		})
	}
	logger := log.WithSubscriptionID(s.logger, id)
	logger.Debug().
		Bool("found", found).
		Uint32("owner", uint32(owner)).
		Msg("unregister")
	return found, nil
}

func (s *Server) removeByProcess(pid types.PID) {
	n := s.reg.RemoveByProcess(pid)
	if n == 0 {
		return
	}
	metrics.UnregistrationsTotal.WithLabelValues("process_exit").Add(float64(n))
	s.feed.Publish(&events.Event{
		Type:    events.EventSubscriptionRemoved,
		PID:     uint32(pid),
		Message: "process_exit",
	})
	logger := log.WithPID(s.logger, uint32(pid))
	logger.Info().Int("removed", n).Msg("removed subscriptions of exited process")
}

func (s *Server) shutdown() {
	n := s.reg.RemoveAll()
	if n > 0 {
		metrics.UnregistrationsTotal.WithLabelValues("shutdown").Add(float64(n))
	}
	s.watches.RequestStopAll()
	s.feed.Publish(&events.Event{
		Type:     events.EventBrokerShutdown,
		PID:      uint32(s.cfg.PID),
		Metadata: map[string]string{"removed": fmt.Sprint(n)},
	})
	s.logger.Info().Int("removed", n).Msg("broker shutting down")
}

// exit closes the request channel to new posts, rejects whatever is still
// queued and signals Done.
func (s *Server) exit() {
	s.markClosed()
	for {
		select {
		case req := <-s.requests:
			s.reject(req)
		default:
			close(s.doneCh)
			return
		}
	}
}

func (s *Server) reject(req request) {
	if req.reply != nil {
		req.respond(reply{err: ErrServerClosed})
		return
	}
	// Posted tickets have no caller left to free them.
	if req.op == opDeliver {
		if err := s.gw.Free(req.handle, req.pid); err != nil {
			s.logger.Warn().Err(err).Uint64("ticket", uint64(req.handle)).Msg("failed to free queued ticket")
		}
	}
}

func (s *Server) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
