// Package memory keeps recording history in memory and exports it as JSON
// when the backend is closed.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/pkg/core"
)

// Backend stores history in memory and exports to JSON
type Backend struct {
	cfg config.MemoryConfig
	now func() time.Time

	saves     []core.SaveEvent
	deletes   []core.DeleteEvent
	playbacks []core.PlaybackRun

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg, now: time.Now}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports everything recorded so far. Nothing is written when no
// output directory is configured or nothing was recorded.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" || b.empty() {
		return nil
	}
	return b.exportJSON()
}

func (b *Backend) empty() bool {
	return len(b.saves) == 0 && len(b.deletes) == 0 && len(b.playbacks) == 0
}

// RecordSave appends a save event
func (b *Backend) RecordSave(e *core.SaveEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves = append(b.saves, *e)
	return nil
}

// RecordDelete appends a delete event
func (b *Backend) RecordDelete(e *core.DeleteEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, *e)
	return nil
}

// RecordPlayback appends a finished playback run
func (b *Backend) RecordPlayback(run *core.PlaybackRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playbacks = append(b.playbacks, *run)
	return nil
}

// RecentSaves returns up to limit saves, newest first. limit <= 0 returns all.
func (b *Backend) RecentSaves(limit int) ([]core.SaveEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]core.SaveEvent(nil), b.saves...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return truncate(out, limit), nil
}

// RecentPlaybacks returns up to limit runs, most recently stopped first.
func (b *Backend) RecentPlaybacks(limit int) ([]core.PlaybackRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]core.PlaybackRun(nil), b.playbacks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StoppedAt.After(out[j].StoppedAt) })
	return truncate(out, limit), nil
}

// Deletes returns a copy of the recorded delete events in arrival order.
func (b *Backend) Deletes() []core.DeleteEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.DeleteEvent(nil), b.deletes...)
}

// GetExportedFilePath returns the path of the last export, if any.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
