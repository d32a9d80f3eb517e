package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period after a file event before a
// reload fires. Editors tend to emit several events per save.
const DefaultDebounceInterval = 200 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and hands
// each valid new snapshot to a callback. A snapshot that fails to load or
// validate is logged and discarded; the previous configuration stays in
// effect.
type Watcher struct {
	path     string
	logger   *slog.Logger
	notify   *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	done    chan struct{}

	// reloadMu serializes fired reloads: stopping the debounce timer does
	// not stop a callback that already started, so a burst of events could
	// otherwise run two onReload calls at once.
	reloadMu sync.Mutex
}

// NewWatcher builds a watcher over the config file at path. Call Watch to
// start it.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:     path,
		logger:   logger,
		notify:   notify,
		debounce: DefaultDebounceInterval,
		done:     make(chan struct{}),
	}, nil
}

// Watch starts the event loop in a background goroutine. onReload is called
// with each new valid configuration. Watching the parent directory rather
// than the file itself survives the rename-over-save pattern most editors
// use.
func (w *Watcher) Watch(onReload func(*Config)) error {
	if err := w.notify.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %q: %w", w.path, err)
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-w.notify.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.trigger(onReload)

			case err, ok := <-w.notify.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", slog.Any("error", err))
			}
		}
	}()

	w.logger.Info("config watcher started", slog.String("path", w.path))
	return nil
}

// trigger debounces rapid event bursts into a single reload.
func (w *Watcher) trigger(onReload func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.reloadMu.Lock()
		defer w.reloadMu.Unlock()

		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Error("config reload rejected",
				slog.String("path", w.path),
				slog.Any("error", err))
			return
		}
		w.logger.Info("config reloaded", slog.String("path", w.path))
		onReload(cfg)
	})
}

// Stop cancels pending reloads and closes the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.notify.Close()
	<-w.done
	return err
}
