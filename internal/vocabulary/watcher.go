package vocabulary

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/seanankenbruck/viewpoint-search/internal/observability"
)

// Watcher reloads a vocabulary file into a Registry whenever it changes.
// A document that fails to parse is logged and ignored so the last good
// snapshot stays active.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   *observability.Logger
	onSwap   func(old, next *Snapshot)
}

// NewWatcher creates a watcher for path. The containing directory is
// watched so that editors which replace the file atomically are handled.
func NewWatcher(path string, registry *Registry, logger *observability.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create vocabulary watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		watcher:  fw,
		logger:   logger,
	}, nil
}

// OnSwap registers a callback invoked after each successful reload.
func (w *Watcher) OnSwap(fn func(old, next *Snapshot)) {
	w.onSwap = fn
}

// Run blocks until ctx is cancelled or the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info(ctx, "Watching vocabulary file", map[string]interface{}{
		"path":    w.path,
		"version": w.registry.Current().Version(),
	})

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "Vocabulary watcher error", map[string]interface{}{
				"error": err.Error(),
			})

		case <-ctx.Done():
			return nil
		}
	}
}

// Reload re-reads the file immediately.
func (w *Watcher) Reload(ctx context.Context) bool {
	return w.reload(ctx)
}

func (w *Watcher) reload(ctx context.Context) bool {
	next, err := LoadFile(w.path)
	observability.RecordVocabularyReload(err)
	if err != nil {
		w.logger.Warn(ctx, "Keeping previous vocabulary after failed reload", map[string]interface{}{
			"path":    w.path,
			"error":   err.Error(),
			"version": w.registry.Current().Version(),
		})
		return false
	}

	old := w.registry.Swap(next)
	w.logger.Info(ctx, "Vocabulary reloaded", map[string]interface{}{
		"previous_version": old.Version(),
		"version":          next.Version(),
	})
	if w.onSwap != nil {
		w.onSwap(old, next)
	}
	return true
}
