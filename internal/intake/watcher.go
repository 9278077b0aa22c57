// Package intake watches a drop folder for CSV files and hands each settled
// file to a handler, typically one analysis run per upload.
package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"datanerd/internal/logging"
)

// Handler processes one settled CSV file.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a file must stay quiet before it is handled.
	Debounce time.Duration
	// Parallel caps concurrently running handlers.
	Parallel int
	// ProcessExisting handles CSV files already in the folder at Start.
	ProcessExisting bool
}

// Stats tracks watcher activity.
type Stats struct {
	Seen      int
	Handled   int
	Failed    int
	LastPath  string
	LastError string
}

// Watcher watches one directory for *.csv files.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	opts        Options
	debounceMap map[string]time.Time
	group       errgroup.Group
	cancel      context.CancelFunc
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher over dir.
func New(dir string, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("intake: nil handler")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		watcher:     fw,
		dir:         dir,
		handler:     handler,
		opts:        opts,
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	w.group.SetLimit(opts.Parallel)
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create intake dir: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logging.Intake("watching %s (debounce=%s, parallel=%d)", w.dir, w.opts.Debounce, w.opts.Parallel)

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.running = true
	w.cancel = cancel
	w.mu.Unlock()

	if w.opts.ProcessExisting {
		existing, err := ListCSV(w.dir)
		if err != nil {
			logging.Get(logging.CategoryIntake).Warn("failed to list existing files: %v", err)
		}
		now := time.Now().Add(-w.opts.Debounce)
		w.mu.Lock()
		for _, p := range existing {
			w.debounceMap[p] = now
			w.stats.Seen++
		}
		w.mu.Unlock()
	}

	go w.run(ctx)
	return nil
}

// Stop stops watching, cancels in-flight handlers and waits for them.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	close(w.stopCh)
	<-w.doneCh
	_ = w.group.Wait()

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryIntake).Error("error closing watcher: %v", err)
	}
	logging.Intake("stopped watching %s", w.dir)
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.opts.Debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			logging.Get(logging.CategoryIntake).Error("watcher error: %v", err)
		case <-ticker.C:
			w.dispatchSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !IsCSV(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	logging.Get(logging.CategoryIntake).Debug("%s %s", ev.Op, ev.Name)

	w.mu.Lock()
	if _, pending := w.debounceMap[ev.Name]; !pending {
		w.stats.Seen++
	}
	w.debounceMap[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) dispatchSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.opts.Debounce {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		path := path
		w.group.Go(func() error {
			w.process(ctx, path)
			return nil
		})
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		logging.Get(logging.CategoryIntake).Debug("skipping %s: %v", path, err)
		return
	}
	logging.Intake("handling %s", path)
	err := w.handler(ctx, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastPath = path
	if err != nil {
		w.stats.Failed++
		w.stats.LastError = err.Error()
		logging.Get(logging.CategoryIntake).Warn("handler failed for %s: %v", path, err)
		return
	}
	w.stats.Handled++
}

// IsCSV reports whether path names a CSV file. Hidden and partial files
// are ignored.
func IsCSV(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".csv")
}

// ListCSV returns the CSV files directly under dir, sorted.
func ListCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsCSV(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
