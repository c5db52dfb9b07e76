// Package watcher watches the config file and triggers hot reloads.
// It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/brightmind/post-publisher/internal/config"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// configReloadDebounce collapses the burst of events editors emit on save.
const configReloadDebounce = 150 * time.Millisecond

// Watcher reloads the configuration when the file on disk changes and hands
// the new value to a callback.
type Watcher struct {
	configPath        string
	config            *config.Config
	mu                sync.RWMutex
	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer
	reloadCallback    func(*config.Config)
	watcher           *fsnotify.Watcher
	lastConfigHash    string
	oldConfigYaml     []byte
	debounce          time.Duration
}

// NewWatcher creates a new file watcher instance for configPath.
func NewWatcher(configPath string, reloadCallback func(*config.Config)) (*Watcher, error) {
	fw, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = configPath
	}
	return &Watcher{
		configPath:     abs,
		reloadCallback: reloadCallback,
		watcher:        fw,
		debounce:       configReloadDebounce,
	}, nil
}

// Start begins watching. Events are processed until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	return w.start(ctx)
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	w.stopConfigReloadTimer()
	return w.watcher.Close()
}

// SetConfig records the configuration currently in effect. It is the
// baseline the next reload is compared against.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
	w.oldConfigYaml, _ = yaml.Marshal(cfg)
	if hash, err := fileHash(w.configPath); err == nil {
		w.lastConfigHash = hash
	}
}

// Config returns the configuration currently in effect.
func (w *Watcher) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}
