package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the new
// Config to a callback. Editors replace rather than rewrite files, so the
// parent directory is watched and events are filtered by name.
type Watcher struct {
	path      string
	onChange  func(*Config)
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
}

// Watch starts watching the config file at path. The callback runs on the
// watcher goroutine after each debounced change that parses cleanly.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(path)); err != nil {
		fsW.Close()
		return nil, err
	}

	w := &Watcher{
		path:      path,
		onChange:  onChange,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Stop closes the watcher. Safe to call once.
func (w *Watcher) Stop() {
	close(w.cancel)
	w.fsWatcher.Close()
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop() {
	var timer *time.Timer

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	slog.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}
