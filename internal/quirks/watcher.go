package quirks

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the quirk file must be quiet before a reload.
const DefaultDebounce = 250 * time.Millisecond

// Logger is the logging surface used by Watcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Watcher reloads a Database when its file changes on disk.
//
// The parent directory is watched rather than the file so that editors and
// config management tools that replace the file by rename are seen.
type Watcher struct {
	db       *Database
	path     string
	debounce time.Duration
	logger   Logger
	watcher  *fsnotify.Watcher

	// reloaded is signalled after every reload attempt; tests only.
	reloaded chan error
}

// NewWatcher starts watching the directory containing path. Call Run to
// process events and Close when done.
func NewWatcher(db *Database, path string, logger Logger) (*Watcher, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving quirk file path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating quirk file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		db:       db,
		path:     abs,
		debounce: DefaultDebounce,
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Run handles file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("quirk file watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	err := w.db.Reload(w.path)
	if err != nil {
		w.logger.Warn("quirk file reload failed, keeping previous models", "path", w.path, "error", err)
	} else {
		w.logger.Info("quirk file reloaded", "path", w.path, "models", w.db.Len())
	}
	if w.reloaded != nil {
		w.reloaded <- err
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
