// Package modelwatch loads a coefficient header into the registry and
// reloads it whenever the file changes on disk.
package modelwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"weather-coef/internal/coef"
	"weather-coef/internal/header"
)

// DefaultDebounce is how long a file must be quiet before it is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// Registry receives reloaded tables
type Registry interface {
	RegisterAndActivate(t *coef.Table) error
}

// Watcher reloads one header file. A file that fails to parse or validate
// is logged and never replaces the active table.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	registry Registry
	logger   *zap.Logger
	path     string
	debounce time.Duration
	pending  time.Time
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	// OnLoad, when set, is called after every successful activation.
	OnLoad func(ctx context.Context, t *coef.Table)

	// OnError, when set, is called for every load that was rejected.
	OnError func(err error)
}

// New creates a watcher for path. Nothing is loaded until Load or Start.
func New(path string, registry Registry, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	return &Watcher{
		registry: registry,
		logger:   logger.Named("modelwatch"),
		path:     abs,
		debounce: DefaultDebounce,
	}, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Load parses the file and activates it.
func (w *Watcher) Load(ctx context.Context) (*coef.Table, error) {
	table, err := w.activate(ctx)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return nil, err
	}

	log := w.logger.With(zap.String("model_id", table.ID), zap.String("path", w.path))
	if table.Unstable() {
		log.Warn("activated table with large coefficients", zap.Float64("max_abs_coefficient", table.MaxAbsCoefficient()))
	} else {
		log.Info("activated table")
	}

	if w.OnLoad != nil {
		w.OnLoad(ctx, table)
	}
	return table, nil
}

func (w *Watcher) activate(ctx context.Context) (*coef.Table, error) {
	table, err := header.ParseFile(ctx, w.path)
	if err != nil {
		return nil, err
	}
	if err := w.registry.RegisterAndActivate(table); err != nil {
		return nil, fmt.Errorf("failed to activate %s: %w", table.ID, err)
	}
	return table, nil
}

// Start watches the file's directory and reloads on change. Editors often
// replace files instead of writing them, so the directory is watched and
// events are filtered by name. Start does not block, and may be called
// again after Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, watcher, w.stopCh, w.doneCh)

	w.logger.Info("watching", zap.String("path", w.path))
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	watcher, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	if err := watcher.Close(); err != nil {
		w.logger.Error("failed to close watcher", zap.Error(err))
	}
	w.logger.Info("stopped")
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))

		case <-ticker.C:
			if w.settled() {
				w.reload(ctx)
			}
		}
	}
}

// settled reports whether a change is pending and quiet for the debounce
// window, clearing it if so.
func (w *Watcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		return false
	}
	w.pending = time.Time{}
	return true
}

func (w *Watcher) reload(ctx context.Context) {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		w.logger.Warn("model file removed, keeping active table", zap.String("path", w.path))
		return
	}
	if _, err := w.Load(ctx); err != nil {
		w.logger.Error("reload failed, keeping active table", zap.String("path", w.path), zap.Error(err))
	}
}
