package policyfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/keel/pkg/pm"
)

// DefaultDebounce is the quiet period before a change is re-imported.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-imports a policy file whenever it changes.
type Watcher struct {
	path      string
	store     pm.Store
	projectID string
	actor     string
	debounce  time.Duration
	logger    *slog.Logger

	// OnImport, if set, is called after every import attempt.
	OnImport func(*Result, error)

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(path string, store pm.Store, projectID, actor string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:      filepath.Clean(path),
		store:     store,
		projectID: projectID,
		actor:     actor,
		debounce:  debounce,
		logger:    logger.With("component", "policyfile.watcher"),
	}
}

// Watch blocks until ctx is cancelled. The parent directory is watched so
// that editors which replace the file by rename are still seen.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	d := newDebouncer(w.debounce)
	defer d.stop()

	w.logger.Info("policy watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("policy file event", "op", event.Op.String())
			d.trigger(func() { w.reimport(ctx) })

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

func (w *Watcher) reimport(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := ImportFile(ctx, w.store, w.projectID, w.path, w.actor)
	switch {
	case err != nil:
		w.logger.Error("policy re-import failed", "path", w.path, "error", err)
	case res.Skipped:
		w.logger.Debug("policy file unchanged", "path", w.path)
	default:
		w.logger.Info("policy re-imported",
			"path", w.path,
			"changed_keys", res.ChangedKeys,
			"version", res.State.Version,
		)
	}
	if w.OnImport != nil {
		w.OnImport(res, err)
	}
}

// debouncer runs the latest callback once no trigger has arrived for interval.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
