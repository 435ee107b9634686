package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/pkg/safego"
)

// Watcher hot-reloads CoreConfig from the active config file on write,
// using fsnotify as a real filesystem event source instead of a polling
// ticker. The orchestrator and batch processor read Watcher.Core() once,
// when the App is built; later reloads update the snapshot only.
type Watcher struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[CoreConfig]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher creates a watcher seeded with the config already loaded by Load.
func NewWatcher(path string, initial CoreConfig, logger *zap.Logger) *Watcher {
	w := &Watcher{
		path:   path,
		logger: logger.With(zap.String("component", "config_watcher")),
		stopCh: make(chan struct{}),
	}
	w.current.Store(&initial)
	return w
}

// Core returns the latest loaded CoreConfig snapshot (thread-safe, lock-free read).
func (w *Watcher) Core() CoreConfig {
	return *w.current.Load()
}

// Start begins watching the config file for writes. Reload failures are
// logged and otherwise ignored — the last good snapshot stays active.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	safego.Go(w.logger, "config-watcher", func() { w.loop(fw) })
	w.logger.Info("config watcher started", zap.String("path", w.path))
	return nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	w.current.Store(&cfg.Core)
	w.logger.Info("core config reloaded",
		zap.Int("concurrency", cfg.Core.Concurrency),
		zap.String("llm_provider", cfg.Core.LLMProvider),
		zap.Strings("identifier_priority", cfg.Core.IdentifierPriority),
	)
}

// Stop halts the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.watcher = nil
	}
}
