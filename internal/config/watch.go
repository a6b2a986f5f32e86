package config

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"edfhub/internal/logging"
)

// Live holds a Config behind an atomic pointer, swapped in place whenever
// the watched file changes, so no component needs to restart to pick up a
// new allowlist or DDA binary path, using the same fsnotify
// atomic-pointer-swap pattern used for other hot-reloadable state in this
// codebase.
type Live struct {
	ptr atomic.Pointer[Config]
}

// NewLive wraps an initial Config for atomic hot-swapping.
func NewLive(initial *Config) *Live {
	l := &Live{}
	l.ptr.Store(initial)
	return l
}

// Get returns the currently active Config.
func (l *Live) Get() *Config {
	return l.ptr.Load()
}

// WatchFile starts an fsnotify watcher on path; whenever it reports a write
// or create event, reload calls loader to build a new Config and, if it
// validates, atomically swaps it in. Reload errors are logged and the
// previous Config is kept in place. The returned watcher should be closed
// by the caller on shutdown.
func (l *Live) WatchFile(path string, loader func() (*Config, error), logger *slog.Logger) (*fsnotify.Watcher, error) {
	logger = logging.Default(logger).With("component", "config-watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next, err := loader()
				if err != nil {
					logger.Warn("config reload failed, keeping previous config", "error", err)
					continue
				}
				l.ptr.Store(next)
				logger.Info("config reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}
