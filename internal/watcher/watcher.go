// Package watcher keeps the vector collection in sync with the image
// directory while the server runs. It listens for filesystem events on the
// configured directory, debounces writes so half-copied files settle before
// they are read, and hands stable files to the indexer one at a time.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/imaging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches a single image directory and invokes callbacks when image
// files appear, change, or disappear. Callbacks receive the base filename,
// never a path, matching how images are addressed everywhere else.
type Watcher struct {
	dir      string
	onIndex  func(filename string)
	onRemove func(filename string)
	debounce time.Duration
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for event debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the settle delay before a changed file is indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher for dir. onIndex is called after a created or
// modified image file settles; onRemove when an image file is deleted.
// Either callback may be nil.
func New(dir string, onIndex, onRemove func(filename string), opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		onIndex:  onIndex,
		onRemove: onRemove,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the watch is registered; events are
// processed in a background goroutine until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching image directory", zap.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	filename := filepath.Base(ev.Name)
	if !imaging.IsSupported(filename) {
		return
	}
	w.logger.Debug("image event", zap.String("op", ev.Op.String()), zap.String("file", filename))

	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		w.scheduleIndex(filename)
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelPending(filename)
		if w.onRemove != nil {
			w.onRemove(filename)
		}
	}
}

// scheduleIndex (re)arms the settle timer for a file. Repeated writes while a
// copy is in flight keep pushing the timer back, so the callback fires once
// the file has been quiet for the full debounce window.
func (w *Watcher) scheduleIndex(filename string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[filename]; ok {
		t.Stop()
	}
	w.pending[filename] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, filename)
		w.mu.Unlock()
		if w.onIndex != nil {
			w.onIndex(filename)
		}
	})
}

func (w *Watcher) cancelPending(filename string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[filename]; ok {
		t.Stop()
		delete(w.pending, filename)
	}
}

// Stop stops the watcher and cancels any pending settle timers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
