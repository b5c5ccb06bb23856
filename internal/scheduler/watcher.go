package scheduler

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"duewatch/pkg/logging"
)

const (
	// DefaultDebounceInterval is how long the watcher waits after the last
	// change to the registry file before reloading it.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify cannot watch the directory.
	DefaultPollInterval = 30 * time.Second
)

// RegistryWatcher reloads a file-backed Registry when its file changes.
// Editors often replace files instead of writing them, so the parent
// directory is watched and events are filtered by name.
type RegistryWatcher struct {
	mu sync.Mutex

	registry     *Registry
	debounce     time.Duration
	pollInterval time.Duration
	onReload     func(error)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool
	lastMod   time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewRegistryWatcher creates a watcher for registry. onReload, if set, is
// called after every reload attempt with its result.
func NewRegistryWatcher(registry *Registry, onReload func(error)) *RegistryWatcher {
	return &RegistryWatcher{
		registry:     registry,
		debounce:     DefaultDebounceInterval,
		pollInterval: DefaultPollInterval,
		onReload:     onReload,
	}
}

// Start begins watching. It is a no-op for in-memory registries.
func (w *RegistryWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running || w.registry.Path() == "" {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	dir := filepath.Dir(w.registry.Path())
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("RegistryWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.poll()
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		logging.Warn("RegistryWatcher", "Failed to watch %s, falling back to polling: %v", dir, err)
		_ = watcher.Close()
		go w.poll()
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(watcher.Events, watcher.Errors)

	logging.Info("RegistryWatcher", "Watching %s for registry changes", w.registry.Path())
	return nil
}

func (w *RegistryWatcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("RegistryWatcher", err, "fsnotify error")
		}
	}
}

func (w *RegistryWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.registry.Path()) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	logging.Debug("RegistryWatcher", "Registry file changed: %s (%s)", event.Name, event.Op)
	w.reloadDebounced()
}

func (w *RegistryWatcher) poll() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	if info, err := os.Stat(w.registry.Path()); err == nil {
		w.lastMod = info.ModTime()
	}

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			info, err := os.Stat(w.registry.Path())
			if err != nil {
				continue
			}
			if info.ModTime().After(w.lastMod) {
				w.lastMod = info.ModTime()
				w.reloadDebounced()
			}
		}
	}
}

// reloadDebounced collapses bursts of events into one reload.
func (w *RegistryWatcher) reloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}

		err := w.registry.Reload()
		if err != nil {
			logging.Error("RegistryWatcher", err, "Registry reload failed, keeping previous users")
		} else {
			logging.Info("RegistryWatcher", "Registry reloaded with %d users", w.registry.Len())
		}
		if w.onReload != nil {
			w.onReload(err)
		}
	})
}

// Stop ends watching. Pending reloads are cancelled.
func (w *RegistryWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("RegistryWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *RegistryWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
