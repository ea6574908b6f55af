package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
)

// Watcher re-reads the source list when the config file changes. It satisfies the
// scheduler's source loader; reloads only happen between cycles.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	dirty   atomic.Bool
	load    func(path string) ([]domain.SourceConfig, error)

	mu      sync.Mutex
	sources []domain.SourceConfig
}

// NewWatcher watches the directory of path, so editors that replace the file are seen too.
func NewWatcher(path string, initial []domain.SourceConfig, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, watcher: fw, logger: logger, load: LoadSources, sources: initial}, nil
}

// Run consumes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.dirty.Store(true)
				w.logger.Info("config file changed, sources reload on next cycle", zap.String("path", w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Sources returns the cached source set, re-reading the file first if it changed.
func (w *Watcher) Sources(context.Context) ([]domain.SourceConfig, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Cleared before the read; a change landing mid-read stays pending.
	if !w.dirty.Swap(false) {
		return w.sources, nil
	}
	sources, err := w.load(w.path)
	if err != nil {
		w.dirty.Store(true)
		return nil, err
	}
	w.sources = sources
	return sources, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
