package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events into one reload.
const debounceWindow = 200 * time.Millisecond

// Watcher reloads the project configuration when metasync.yaml or a
// profile file changes. A reload affects only work enqueued afterwards;
// in-flight tasks keep the snapshot they were created with.
type Watcher struct {
	cfgFile string
	logger  *slog.Logger
	onLoad  func(*Config)
	onError func(error)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// ConfigFile is the path the configuration was loaded from.
	ConfigFile string
	// OnLoad receives every successfully reloaded configuration.
	OnLoad func(*Config)
	// OnError receives reload failures. The previous configuration stays
	// in effect. Optional.
	OnError func(error)
	Logger  *slog.Logger
}

// NewWatcher creates a configuration watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.ConfigFile == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	if cfg.OnLoad == nil {
		return nil, fmt.Errorf("OnLoad callback is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		cfgFile: cfg.ConfigFile,
		logger:  logger,
		onLoad:  cfg.OnLoad,
		onError: cfg.OnError,
	}, nil
}

// Watch blocks until ctx is cancelled, reloading the configuration on
// change. The config file's directory is watched rather than the file
// itself so editors that replace the file atomically are still seen.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.cfgFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// Watch the profiles directory too when it exists.
	if cfg, err := Load(w.cfgFile, nil); err == nil && cfg.ProfilesDir != "" {
		if err := watcher.Add(cfg.ProfilesDir); err != nil {
			w.logger.Debug("profiles directory not watchable",
				slog.String("dir", cfg.ProfilesDir),
				slog.String("error", err.Error()))
		}
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := event.Name
			debounce = time.AfterFunc(debounceWindow, func() {
				w.reload(name)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) relevant(path string) bool {
	if filepath.Clean(path) == filepath.Clean(w.cfgFile) {
		return true
	}
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func (w *Watcher) reload(changed string) {
	cfg, err := Load(w.cfgFile, nil)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous configuration",
			slog.String("changed", filepath.Base(changed)),
			slog.String("error", err.Error()))
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.logger.Info("configuration reloaded",
		slog.String("changed", filepath.Base(changed)))
	w.onLoad(cfg)
}
