package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moolen/sleuth/internal/logging"
)

// ReloadCallback is called when the config file is successfully reloaded.
// If the callback returns an error, it is logged but the watcher continues watching.
type ReloadCallback func(cfg *Config) error

// PolicyWatcherConfig holds configuration for the PolicyWatcher.
type PolicyWatcherConfig struct {
	// FilePath is the path to the config file to watch
	FilePath string

	// DebounceMillis is the debounce period in milliseconds.
	// Multiple file change events within this period are coalesced into a single reload.
	// Default: 500ms
	DebounceMillis int
}

// PolicyWatcher watches the config file and hands every valid new version
// to a callback, typically one that swaps the engine policy of the
// dialogue manager. Editor save sequences are debounced.
//
// Invalid configs during reload are logged but do not stop the watcher; the
// previous policy stays in effect.
type PolicyWatcher struct {
	config   PolicyWatcherConfig
	callback ReloadCallback
	logger   *logging.Logger
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{} // closed once the fsnotify watcher is initialized
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewPolicyWatcher creates a watcher for the given config file.
// Returns an error if FilePath is empty or callback is nil.
func NewPolicyWatcher(config PolicyWatcherConfig, callback ReloadCallback) (*PolicyWatcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}

	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}

	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}

	return &PolicyWatcher{
		config:   config,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Name implements lifecycle.Component.
func (w *PolicyWatcher) Name() string {
	return "policy-watcher"
}

// Start loads the current file, calls the callback with it and starts
// watching for changes in the background. It returns once the watch is
// established.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	initial, err := Load(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	w.logger.Info("Loaded initial policy from %s", w.config.FilePath)

	// The watch loop outlives the start context; Stop cancels it.
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case <-time.After(5 * time.Second):
		cancel()
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}

	return nil
}

// signalReady closes the ready channel exactly once
func (w *PolicyWatcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *PolicyWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("Failed to watch file %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Debug("Watching %s for changes (debounce: %dms)", w.config.FilePath, w.config.DebounceMillis)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
				!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
				continue
			}
			// Atomic saves replace the inode; the watch has to be re-added.
			if event.Op.Has(fsnotify.Rename) || event.Op.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.handleFileChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

// handleFileChange (re)arms the debounce timer.
func (w *PolicyWatcher) handleFileChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		w.reload,
	)
}

func (w *PolicyWatcher) reload() {
	cfg, err := Load(w.config.FilePath)
	if err != nil {
		w.logger.Warn("Failed to reload config, keeping previous policy: %v", err)
		return
	}

	if err := w.callback(cfg); err != nil {
		w.logger.Warn("Reload callback failed, keeping previous policy: %v", err)
		return
	}

	w.logger.Info("Policy reloaded from %s", w.config.FilePath)
}

// Stop ends the watch loop, waiting at most until ctx is done.
func (w *PolicyWatcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
