package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// relevantOps are the filesystem operations on the config file that trigger a reload.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watcher watches the config file for changes and triggers a reload.
// It watches the parent directory (non-recursive) so that editors which
// replace the file via rename are picked up.
type Watcher struct {
	mu     sync.Mutex
	logger *slog.Logger

	watcher  *fsnotify.Watcher
	filePath string

	// Callback for changes
	onChangeCallback func()

	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewWatcher creates a new Watcher for the config file at path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &Watcher{
		logger:   logger,
		watcher:  watcher,
		filePath: filepath.Clean(abs),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// SetChangeCallback sets the callback to invoke when the config file changes.
func (w *Watcher) SetChangeCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChangeCallback = callback
}

// Start begins watching the config file's directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.filePath)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.watch(ctx)

	w.logger.Debug("config watcher started", "path", w.filePath, "dir", dir)
	return nil
}

// watch is the main watch loop.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stopped)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}

			w.logger.Debug("config file changed", "path", event.Name, "op", event.Op.String())

			w.mu.Lock()
			callback := w.onChangeCallback
			w.mu.Unlock()

			if callback != nil {
				callback()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-ctx.Done():
			return

		case <-w.done:
			return
		}
	}
}

// isRelevant reports whether an event concerns the config file itself.
func (w *Watcher) isRelevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.filePath {
		return false
	}
	return event.Op&relevantOps != 0
}

// Stop stops the watcher and waits for the watch loop to exit.
// It is safe to call more than once, and after a failed Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.stopped
	w.logger.Debug("config watcher stopped")
	return err
}
