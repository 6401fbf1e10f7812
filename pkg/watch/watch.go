package watch

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/shm"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var (
	// ErrStartFailed is the root of every StartWatch failure.
	ErrStartFailed = errors.New("failed to start directory watch")
	// ErrTooManyWatchers is returned when MaxWatchers is reached.
	ErrTooManyWatchers = fmt.Errorf("%w: watcher limit reached", ErrStartFailed)
)

// Poster is the only way a watcher talks to the broker: it enqueues a
// deliver request for a ticket the watcher allocated under owner. Post
// must not block.
type Poster interface {
	Post(ticket shm.Handle, owner types.PID) error
}

// Config holds watcher settings
type Config struct {
	// MaxWatchers caps concurrent watchers; <= 0 means unlimited.
	MaxWatchers int
	// IgnoreHidden drops events for dot-files and dot-directories.
	IgnoreHidden bool
}

// DefaultConfig returns the default watcher settings.
func DefaultConfig() Config {
	return Config{MaxWatchers: 256}
}

// Manager owns the set of running directory watchers.
type Manager struct {
	cfg      Config
	gw       shm.Gateway
	pid      types.PID
	resolver itemid.Resolver
	poster   Poster
	feed     *events.Broker
	logger   zerolog.Logger

	mu       sync.Mutex
	watchers map[*Watcher]struct{}
	wg       sync.WaitGroup
}

// NewManager creates a manager whose watchers allocate tickets in gw under
// pid and hand them to poster.
func NewManager(cfg Config, gw shm.Gateway, pid types.PID, resolver itemid.Resolver, poster Poster) *Manager {
	return &Manager{
		cfg:      cfg,
		gw:       gw,
		pid:      pid,
		resolver: resolver,
		poster:   poster,
		logger:   log.WithComponent("watch"),
		watchers: make(map[*Watcher]struct{}),
	}
}

// SetFeed attaches an activity feed. Call before the first StartWatch.
func (m *Manager) SetFeed(feed *events.Broker) {
	m.feed = feed
}

// StartWatch begins observing dir. scope is the identifier of dir; it is
// used as the ticket path when a non-recursive watch bubbles a change up to
// the directory itself. Failures are reported synchronously and leave
// nothing running.
func (m *Manager) StartWatch(dir string, scope itemid.ItemID, recursive bool) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, dir, itemid.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrStartFailed, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, dir, itemid.ErrNotDirectory)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxWatchers > 0 && len(m.watchers) >= m.cfg.MaxWatchers {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyWatchers, m.cfg.MaxWatchers)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	w := &Watcher{
		m:         m,
		dir:       dir,
		scope:     scope,
		recursive: recursive,
		fsw:       fsw,
		dirs:      make(map[string]bool),
		stopCh:    make(chan struct{}),
		logger:    m.logger.With().Str("dir", dir).Bool("recursive", recursive).Logger(),
	}

	if err := w.add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrStartFailed, dir, err)
	}
	if recursive {
		w.addTree(dir)
	}

	m.watchers[w] = struct{}{}
	m.wg.Add(1)
	metrics.WatchersActive.Inc()
	m.feed.Publish(&events.Event{
		Type:     events.EventWatcherStarted,
		Message:  dir,
		Metadata: map[string]string{"scope": scope.String()},
	})
	w.logger.Debug().Msg("watcher started")

	go w.run()
	return w, nil
}

// RequestStopAll asks every running watcher to stop. It does not wait.
func (m *Manager) RequestStopAll() {
	m.mu.Lock()
	running := make([]*Watcher, 0, len(m.watchers))
	for w := range m.watchers {
		running = append(running, w)
	}
	m.mu.Unlock()

	for _, w := range running {
		w.RequestStop()
	}
}

// Active returns the number of watchers that have not yet exited.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// Wait blocks until every watcher goroutine has exited. The broker never
// calls it; it exists for processes that want a clean exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) remove(w *Watcher) {
	m.mu.Lock()
	delete(m.watchers, w)
	m.mu.Unlock()

	metrics.WatchersActive.Dec()
	m.feed.Publish(&events.Event{
		Type:    events.EventWatcherStopped,
		Message: w.dir,
	})
}
