// Package watch turns filesystem notifications under a root into ordered
// lineage change events.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/discover"
)

// DefaultDebounce is how long a path must stay quiet before its event is
// delivered.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches every directory under a filter's root. Events for one path
// are coalesced until the path has been quiet for the debounce interval, then
// delivered in the order the paths first changed.
type Watcher struct {
	filter   *discover.Filter
	debounce time.Duration
	logger   *slog.Logger
	out      chan lineage.Event
	ready    chan struct{}

	// owned by Run
	fsw     *fsnotify.Watcher
	dirs    map[string]bool
	known   map[string]bool
	pending map[string]*pendingEvent
	seq     int
}

type pendingEvent struct {
	kind lineage.EventKind
	seq  int
	at   time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet interval. Zero delivers every event as soon as
// it arrives.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithBuffer sets the capacity of the event channel.
func WithBuffer(n int) Option {
	return func(w *Watcher) {
		w.out = make(chan lineage.Event, n)
	}
}

// New creates a Watcher over filter's root. Nothing is watched until Run.
func New(filter *discover.Filter, opts ...Option) *Watcher {
	w := &Watcher{
		filter:   filter,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		out:      make(chan lineage.Event, 64),
		ready:    make(chan struct{}),
		dirs:     make(map[string]bool),
		known:    make(map[string]bool),
		pending:  make(map[string]*pendingEvent),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the channel events are delivered on. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan lineage.Event {
	return w.out
}

// Ready is closed once Run has placed its initial watches.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. Events still waiting out the debounce when
// ctx ends are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.out)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()
	w.fsw = fsw

	if err := w.addTree(w.filter.Root(), false); err != nil {
		return err
	}
	w.logger.Info("watch.started", "root", w.filter.Root(), "dirs", len(w.dirs))
	close(w.ready)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
			if w.debounce <= 0 {
				if !w.flush(ctx, time.Time{}) {
					return nil
				}
				continue
			}
			if len(w.pending) > 0 {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch.error", "err", err)

		case <-timer.C:
			if !w.flush(ctx, time.Now().Add(-w.debounce)) {
				return nil
			}
			if len(w.pending) > 0 {
				timer.Reset(w.debounce)
			}
		}
	}
}

// addTree watches dir and every directory below it. With emit set, files
// already present are reported as added, which covers files written into a
// new directory before its watch was in place.
func (w *Watcher) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch: %s: %w", dir, err)
			}
			return nil
		}
		if d.IsDir() {
			if path != w.filter.Root() && w.filter.SkipDir(path) {
				return filepath.SkipDir
			}
			if w.dirs[path] {
				return nil
			}
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("watch.add_failed", "dir", path, "err", err)
				return nil
			}
			w.dirs[path] = true
			return nil
		}
		if !w.filter.MatchFile(path) {
			return nil
		}
		if emit && !w.known[path] {
			w.queue(path, lineage.Added)
		}
		w.known[path] = true
		return nil
	})
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name

	switch {
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if w.dirs[path] {
			w.dropTree(path)
			return
		}
		if w.filter.MatchFile(path) {
			delete(w.known, path)
			w.queue(path, lineage.Removed)
		}

	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.filter.SkipDir(path) {
				return
			}
			if err := w.addTree(path, true); err != nil {
				w.logger.Warn("watch.add_failed", "dir", path, "err", err)
			}
			return
		}
		if w.filter.MatchFile(path) {
			kind := lineage.Added
			if w.known[path] {
				// already reported by addTree
				kind = lineage.Changed
			}
			w.known[path] = true
			w.queue(path, kind)
		}

	case ev.Op.Has(fsnotify.Write):
		if w.filter.MatchFile(path) {
			w.known[path] = true
			w.queue(path, lineage.Changed)
		}
	}
}

// dropTree forgets a removed directory and reports every file known below
// it as removed.
func (w *Watcher) dropTree(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
			_ = w.fsw.Remove(d)
		}
	}
	var gone []string
	for f := range w.known {
		if strings.HasPrefix(f, prefix) {
			gone = append(gone, f)
		}
	}
	sort.Strings(gone)
	for _, f := range gone {
		delete(w.known, f)
		w.queue(f, lineage.Removed)
	}
}

// queue records kind for path. A create followed by writes stays a create.
func (w *Watcher) queue(path string, kind lineage.EventKind) {
	now := time.Now()
	if p, ok := w.pending[path]; ok {
		if !(p.kind == lineage.Added && kind == lineage.Changed) {
			p.kind = kind
		}
		p.at = now
		return
	}
	w.seq++
	w.pending[path] = &pendingEvent{kind: kind, seq: w.seq, at: now}
}

// flush delivers, in first-change order, every pending event last touched
// at or before cutoff. A zero cutoff delivers everything. It returns false
// if ctx ended while delivering.
func (w *Watcher) flush(ctx context.Context, cutoff time.Time) bool {
	var ready []string
	for path, p := range w.pending {
		if cutoff.IsZero() || !p.at.After(cutoff) {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return w.pending[ready[i]].seq < w.pending[ready[j]].seq
	})
	for _, path := range ready {
		ev := lineage.Event{Kind: w.pending[path].kind, Path: path}
		delete(w.pending, path)
		select {
		case w.out <- ev:
			w.logger.Debug("watch.event", "kind", ev.Kind.String(), "path", path)
		case <-ctx.Done():
			return false
		}
	}
	return true
}
