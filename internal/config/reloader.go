package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigReloader watches the config file and reloads it on change or on
// SIGHUP. Only dynamic fields are applied to the running config; a reload
// that fails validation keeps the previous config.
type ConfigReloader struct {
	path     string
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher
	sighup   chan os.Signal
	done     chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)
}

// NewConfigReloader creates a reloader for the given config path. An empty
// path disables file watching; SIGHUP reload still works.
func NewConfigReloader(path string, initial *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	r := &ConfigReloader{
		path:    path,
		logger:  logger,
		sighup:  make(chan os.Signal, 1),
		done:    make(chan struct{}),
		current: initial,
	}

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		// Watch the directory rather than the file: editors and config
		// management tools replace the file via rename, which drops a
		// watch on the file itself.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch config directory: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.sighup, syscall.SIGHUP)
	go r.run()

	return r, nil
}

// Current returns the most recently loaded valid config.
func (r *ConfigReloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked with the new config after every
// successful reload.
func (r *ConfigReloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Stop stops watching and releases resources.
func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		signal.Stop(r.sighup)
		close(r.done)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

func (r *ConfigReloader) run() {
	// Debounce write bursts: editors produce several events per save.
	var debounce *time.Timer
	var debounceC <-chan time.Time

	var events chan fsnotify.Event
	var errors chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errors = r.watcher.Errors
	}

	for {
		select {
		case <-r.done:
			return
		case <-r.sighup:
			r.logger.Info("Received SIGHUP, reloading configuration")
			r.reload()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(250 * time.Millisecond)
			} else {
				debounce.Reset(250 * time.Millisecond)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			r.reload()
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			r.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (r *ConfigReloader) reload() {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Error("Config reload failed, keeping previous configuration")
		return
	}

	r.mu.Lock()
	r.current = cfg
	callbacks := make([]func(*Config), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"log_level":  cfg.LogLevel,
		"chunk_size": cfg.Chunking.Size,
	}).Info("Configuration reloaded")

	for _, fn := range callbacks {
		fn(cfg)
	}
}
