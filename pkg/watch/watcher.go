// Package watch turns file system notifications for a source tree into
// debounced create/update/delete events for individual files.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a directory tree and emits file events.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	debounce  time.Duration
	filter    func(rel string, isDir bool) bool
	logger    *slog.Logger
	events    chan Event
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Root        string
	DebounceDur time.Duration
	// Filter selects the files and directories to watch. Nil watches all.
	Filter func(rel string, isDir bool) bool
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(root string) Config {
	return Config{
		Root:        root,
		DebounceDur: 150 * time.Millisecond,
	}
}

// New creates a new tree watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	filter := cfg.Filter
	if filter == nil {
		filter = func(string, bool) bool { return true }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &Watcher{
		fsWatcher: fsw,
		root:      root,
		debounce:  cfg.DebounceDur,
		filter:    filter,
		logger:    logger,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}, nil
}

// Start watches every eligible directory under the root and returns the
// event channel. The channel is closed after Stop.
func (w *Watcher) Start() (<-chan Event, error) {
	if err := w.addTree(w.root); err != nil {
		return nil, err
	}
	go w.loop()
	return w.events, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(p); ok && rel != "." && !w.filter(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("watching directory %s: %w", p, err)
		}
		return nil
	})
}

// loop collects file system events and flushes them once the tree has been
// quiet for the debounce duration.
func (w *Watcher) loop() {
	defer close(w.events)

	var timer *time.Timer
	pending := make(map[string]Action)

	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}

		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.collect(event, pending)
			if len(pending) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			if !w.flush(pending) {
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) collect(event fsnotify.Event, pending map[string]Action) {
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}
	var action Action
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		action = Delete
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.filter(rel, true) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("cannot watch new directory", "dir", rel, "error", err)
				}
				w.createdTree(event.Name, pending)
			}
			return
		}
		action = Create
	case event.Has(fsnotify.Write):
		action = Update
	default:
		return
	}
	if !w.filter(rel, false) {
		return
	}
	if prev, ok := pending[rel]; ok {
		action = mergeActions(prev, action)
	}
	pending[rel] = action
}

// createdTree queues creations for files already present in a directory that
// appeared after the watch began.
func (w *Watcher) createdTree(dir string, pending map[string]Action) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(p); ok && w.filter(rel, false) {
			pending[rel] = Create
		}
		return nil
	})
}

// mergeActions folds a new action into one already pending for a file.
func mergeActions(prev, next Action) Action {
	switch {
	case prev == Create && next == Update:
		return Create
	case prev == Delete && next == Create:
		return Update
	}
	return next
}

func (w *Watcher) flush(pending map[string]Action) bool {
	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		select {
		case w.events <- Event{Action: pending[f], File: f}:
		case <-w.done:
			return false
		}
		delete(pending, f)
	}
	return true
}

func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
