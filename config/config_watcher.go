package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Verify at compile time that ConfigWatcher implements Watcher
var _ Watcher = (*ConfigWatcher)(nil)

// ConfigWatcher reloads the configuration file when it changes on disk.
// Components that can apply new settings at runtime (currently the rate
// limiter) subscribe for updates; everything else keeps the config it was
// constructed with.
type ConfigWatcher struct {
	currentConfig atomic.Value
	configPath    string
	watcher       *fsnotify.Watcher
	logger        *zap.Logger

	mu          sync.Mutex
	subscribers []chan<- *Config
}

// NewConfigWatcher loads the initial configuration from configPath and
// starts watching the file for writes.
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	cw := &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger,
	}

	initial, err := LoadFile(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("load initial config: %w", err)
	}
	cw.currentConfig.Store(initial)

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}

	go cw.watchLoop()
	return cw, nil
}

// NewStaticWatcher wraps an already-built config in the Watcher interface.
// It never reloads; used in tests and when no config file is present.
func NewStaticWatcher(cfg *Config) *StaticWatcher {
	return &StaticWatcher{cfg: cfg}
}

// Subscribe returns a channel that receives the new config after each
// successful reload.
func (cw *ConfigWatcher) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)
	cw.mu.Lock()
	cw.subscribers = append(cw.subscribers, ch)
	cw.mu.Unlock()
	return ch
}

// GetCurrentConfig returns the current configuration thread-safely
func (cw *ConfigWatcher) GetCurrentConfig() *Config {
	return cw.currentConfig.Load().(*Config)
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				cw.reload()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cw.logger.Info("config file changed, reloading", zap.String("path", cw.configPath))

	newConfig, err := LoadFile(cw.configPath)
	if err != nil {
		// Keep serving with the previous config on a bad reload.
		cw.logger.Error("failed to reload config", zap.Error(err))
		return
	}

	cw.currentConfig.Store(newConfig)

	cw.mu.Lock()
	subs := make([]chan<- *Config, len(cw.subscribers))
	copy(subs, cw.subscribers)
	cw.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- newConfig:
		default:
			// Skip subscribers that have not drained the previous update.
		}
	}

	cw.logger.Info("configuration reloaded")
}

func (cw *ConfigWatcher) Close() error {
	return cw.watcher.Close()
}

// StaticWatcher is a Watcher over a fixed configuration.
type StaticWatcher struct {
	cfg *Config
}

func (sw *StaticWatcher) GetCurrentConfig() *Config { return sw.cfg }

func (sw *StaticWatcher) Subscribe() <-chan *Config {
	// Never delivers; the config cannot change.
	return make(chan *Config)
}

func (sw *StaticWatcher) Close() error { return nil }
