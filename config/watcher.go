package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/finadvisor/finance"
)

// MultiplierWatcher hot-reloads the scenario multipliers when the config
// file changes, so operators can tune scenario optimism without restarting
// and without touching live sessions. Only the multipliers are reloaded;
// everything else requires a restart.
type MultiplierWatcher struct {
	mu      sync.RWMutex
	current finance.Multipliers

	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewMultiplierWatcher starts watching the config file's directory.
// Watching the directory rather than the file survives the
// rename-and-replace pattern editors and configuration management use.
func NewMultiplierWatcher(path string, initial finance.Multipliers, logger *slog.Logger) (*MultiplierWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &MultiplierWatcher{
		current: initial,
		path:    path,
		watcher: watcher,
		logger:  logger,
	}, nil
}

// Multipliers returns the current multipliers. Safe for concurrent use;
// hand this method to the orchestrator as its multiplier source.
func (w *MultiplierWatcher) Multipliers() finance.Multipliers {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes file events until the context is cancelled.
func (w *MultiplierWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *MultiplierWatcher) Close() error {
	return w.watcher.Close()
}

func (w *MultiplierWatcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping current multipliers", "error", err)
		return
	}
	if err := validateMultipliers(cfg.Scenarios.Multipliers); err != nil {
		w.logger.Warn("Rejected invalid multipliers on reload", "error", err)
		return
	}

	w.mu.Lock()
	previous := w.current
	w.current = cfg.Scenarios.Multipliers
	w.mu.Unlock()

	if previous != cfg.Scenarios.Multipliers {
		w.logger.Info("Scenario multipliers reloaded",
			"pessimistic", cfg.Scenarios.Multipliers.Pessimistic,
			"optimistic", cfg.Scenarios.Multipliers.Optimistic)
	}
}
