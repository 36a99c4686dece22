package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/driftfs/internal/logger"
)

// Watcher reloads the configuration file when it changes on disk and
// hands the freshly validated result to a callback. Reloads that fail to
// parse or validate are logged and dropped; the previous configuration
// stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatchFile starts watching the given config file. The callback runs on
// the watcher's goroutine with the new configuration.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file (write temp, rename over) keep
// triggering events.
func WatchFile(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	// Editors often emit bursts of events for a single save. Debounce
	// them so each save triggers one reload.
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error("config reload failed, keeping previous configuration",
			"path", w.path, "error", err)
		return
	}

	logger.Info("configuration reloaded", "path", w.path)
	w.onChange(cfg)
}
