package directory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Static directory whenever its backing file changes.
//
// The parent directory is watched rather than the file itself because most
// editors and config management tools replace files by rename, which drops
// a watch placed on the old inode.
type Watcher struct {
	path     string
	target   *Static
	interval time.Duration
	logger   *slog.Logger
	onReload []func()

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher creates a watcher that reloads target from path. Each function in
// onReload runs after a successful reload.
func NewWatcher(path string, target *Static, debounce time.Duration, onReload ...func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	return &Watcher{
		path:     abs,
		target:   target,
		interval: debounce,
		logger:   slog.Default().With("component", "directory.watcher"),
		onReload: onReload,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Run blocks, processing file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.watcher.Close()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("directory watcher started", "path", w.path, "debounce", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.logger.Info("directory watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("directory file event", "path", event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("directory watcher error", "error", err)
		}
	}
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Reload reads the file and swaps it into the target. A document that fails
// to parse leaves the previous one in place.
func (w *Watcher) Reload() error {
	doc, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	if err := w.target.Replace(doc); err != nil {
		return err
	}
	for _, fn := range w.onReload {
		fn()
	}
	w.logger.Info("directory reloaded",
		"api_keys", len(doc.APIKeys),
		"services", len(doc.Services),
	)
	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// schedule debounces bursts of events into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.interval, func() {
		if err := w.Reload(); err != nil {
			w.logger.Error("directory reload failed, keeping previous document", "error", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
