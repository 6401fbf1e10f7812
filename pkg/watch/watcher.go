package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/itemid"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/payload"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Watcher observes one directory, or one subtree when recursive. It runs
// on its own goroutine and stops only when asked to.
type Watcher struct {
	m         *Manager
	dir       string
	scope     itemid.ItemID
	recursive bool
	fsw       *fsnotify.Watcher
	logger    zerolog.Logger

	// dirs is owned by the run goroutine once it has started.
	dirs map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// RequestStop signals the watcher to stop and release its resources. It
// returns immediately and may be called any number of times.
func (w *Watcher) RequestStop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *Watcher) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Watcher) add(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// addTree watches every directory below root. Unreadable entries are
// skipped.
func (w *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || p == root {
			return nil
		}
		if w.m.cfg.IgnoreHidden && hidden(p) {
			return filepath.SkipDir
		}
		if addErr := w.add(p); addErr != nil {
			w.logger.Debug().Err(addErr).Str("path", p).Msg("failed to watch subdirectory")
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer w.m.wg.Done()
	defer w.m.remove(w)
	defer w.fsw.Close()

	for {
		select {
		case <-w.stopCh:
			w.logger.Debug().Msg("watcher stopped")
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				metrics.WatchEventsTotal.WithLabelValues("overflow").Inc()
				w.post(types.EventUpdateDir, w.rootItem())
				continue
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.m.cfg.IgnoreHidden && hidden(ev.Name) {
		metrics.WatchEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	mask := w.convert(ev)
	if mask == 0 {
		metrics.WatchEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	// Non-recursive watches report every change against the directory,
	// keeping the kind of change alongside update-dir.
	if !w.recursive {
		w.post(mask|types.EventUpdateDir, w.rootItem())
		return
	}

	id, err := w.m.resolver.ItemFor(ev.Name)
	if err != nil {
		metrics.WatchEventsTotal.WithLabelValues("ignored").Inc()
		w.logger.Debug().Err(err).Str("path", ev.Name).Msg("event outside namespace")
		return
	}
	w.post(mask, id)
}

// convert maps an fsnotify operation onto event bits, tracking directory
// creation and removal on the way.
func (w *Watcher) convert(ev fsnotify.Event) types.EventMask {
	var mask types.EventMask

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			mask |= types.EventMkDir
			if w.recursive {
				if err := w.add(ev.Name); err == nil {
					w.addTree(ev.Name)
				}
			}
		} else {
			mask |= types.EventCreate
		}
	}
	if ev.Has(fsnotify.Write) {
		mask |= types.EventUpdateItem
	}
	if ev.Has(fsnotify.Remove) {
		if w.dirs[ev.Name] {
			delete(w.dirs, ev.Name)
			mask |= types.EventRmDir
		} else {
			mask |= types.EventDelete
		}
	}
	if ev.Has(fsnotify.Rename) {
		if w.dirs[ev.Name] {
			delete(w.dirs, ev.Name)
			mask |= types.EventRenameFolder
		} else {
			mask |= types.EventRenameItem
		}
	}
	if ev.Has(fsnotify.Chmod) {
		mask |= types.EventAttributes
	}
	return mask
}

func (w *Watcher) rootItem() itemid.ItemID {
	if w.scope != nil {
		return w.scope
	}
	id, err := w.m.resolver.ItemFor(w.dir)
	if err != nil {
		return nil
	}
	return id
}

// post allocates an interrupt ticket and hands it to the broker. Nothing is
// posted once a stop has been requested.
func (w *Watcher) post(mask types.EventMask, path itemid.ItemID) {
	if w.stopping() {
		return
	}

	t := types.Ticket{
		Events:  mask | types.EventInterrupt,
		Path1:   path,
		TraceID: uuid.NewString(),
		Time:    time.Now(),
	}
	h, err := payload.AllocTicket(w.m.gw, t, w.m.pid)
	if err != nil {
		metrics.WatchEventsTotal.WithLabelValues("dropped").Inc()
		w.logger.Warn().Err(err).Msg("failed to allocate ticket")
		return
	}
	if err := w.m.poster.Post(h, w.m.pid); err != nil {
		_ = w.m.gw.Free(h, w.m.pid)
		metrics.WatchEventsTotal.WithLabelValues("dropped").Inc()
		w.logger.Debug().Err(err).Msg("ticket not posted")
		return
	}
	metrics.WatchEventsTotal.WithLabelValues("posted").Inc()
	w.logger.Debug().
		Str("trace_id", t.TraceID).
		Str("path", path.String()).
		Stringer("events", mask).
		Msg("ticket posted")
}

func hidden(p string) bool {
	base := filepath.Base(p)
	return len(base) > 1 && base[0] == '.'
}
