// Package watch re-runs analysis when source files change on disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"unremark/internal/logging"
)

// Handler is called once per settled change of a supported file.
type Handler func(ctx context.Context, path string)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Dispatched    int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches a directory tree. Rapid writes to the same file are
// collapsed into one dispatch after the debounce window.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	root        string
	ignored     func(path string, dir bool) bool
	supported   func(path string) bool
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// Options configures a Watcher.
type Options struct {
	// Ignored reports paths (relative to root) to skip; nil skips nothing.
	Ignored   func(rel string, dir bool) bool
	Supported func(path string) bool
	Debounce  time.Duration
}

// New creates a watcher for root.
func New(root string, opts Options, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	w := &Watcher{
		watcher:     fw,
		root:        root,
		supported:   opts.Supported,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: opts.Debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	w.ignored = func(path string, dir bool) bool {
		if opts.Ignored == nil {
			return false
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return false
		}
		return opts.Ignored(rel, dir)
	}
	return w, nil
}

// Start registers every non-ignored directory and begins dispatching in
// the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	logging.Scan("watching %s", w.root)

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the OS watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryScan).Error("watcher: error closing: %v", err)
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			logging.Get(logging.CategoryScan).Warn("watcher: cannot watch %s: %v", p, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounceDur / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryScan).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.dispatchSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// New directories need their own watch.
		if event.Op&fsnotify.Create != 0 && !w.ignored(event.Name, true) {
			if err := w.addTree(event.Name); err != nil {
				logging.Get(logging.CategoryScan).Warn("watcher: cannot watch %s: %v", event.Name, err)
			}
		}
		return
	}
	if w.ignored(event.Name, false) || (w.supported != nil && !w.supported(event.Name)) {
		return
	}

	logging.ScanDebug("watcher: %s %s", event.Op, event.Name)
	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) dispatchSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for p, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			ready = append(ready, p)
			delete(w.debounceMap, p)
		}
	}
	w.stats.Dispatched += len(ready)
	w.mu.Unlock()

	for _, p := range ready {
		w.handler(ctx, p)
	}
}
