package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file's directory for writes and invokes a
// callback so the caller (normally epslimiter.Limiter.Load) can pick up
// the change. Grounded on the hot-reload pattern used elsewhere in the
// pack for watching YAML config files with fsnotify.
type Watcher struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for path. Call Start to begin watching.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	return &Watcher{path: path, logger: logger, watcher: fw}, nil
}

// Start begins watching the configured path's directory. onChange is
// invoked (synchronously, from the watcher goroutine) whenever the file is
// written. Start returns once the watch is registered; the goroutine runs
// until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context, onChange func()) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("config: watch dir %s: %w", dir, err)
	}
	w.running = true
	w.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					w.logger.Info("config file changed, reloading", "path", w.path)
					onChange()
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop closes the underlying file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	return w.watcher.Close()
}
