package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/RecM/recm/pkg/core"
)

// Registered is emitted when a new compiled recording appears on disk.
type Registered struct {
	Recording core.Recording
	File      string
}

// Watcher reports recordings written to the catalog directory, including
// those written by other processes.
type Watcher struct {
	w      *fsnotify.Watcher
	events chan Registered
	logger *slog.Logger
}

// NewWatcher starts watching an OS directory.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{w: w, events: make(chan Registered, 64), logger: logger}, nil
}

// Events delivers registrations. It is closed when Run returns.
func (w *Watcher) Events() <-chan Registered {
	return w.events
}

// Run forwards file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	defer w.w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			e, ok := parseBase(filepath.Base(event.Name))
			if !ok {
				continue
			}
			reg := Registered{
				Recording: core.Recording{RecordingKey: e.key, Revision: e.revision},
				File:      event.Name,
			}
			select {
			case w.events <- reg:
			default:
				w.logger.Warn("Registration dropped, consumer too slow", "file", event.Name)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}
