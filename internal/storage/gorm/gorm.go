// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. The postgres
// and sqlite backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/RecM/recm/internal/database"
	"github.com/RecM/recm/internal/model"
	"github.com/RecM/recm/internal/model/convert"
	"github.com/RecM/recm/internal/queue"
	"github.com/RecM/recm/pkg/core"
)

// DefaultFlushInterval is how often the writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	ServerName    string
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Saves     *queue.Queue[model.SavedRecording]
	Deletes   *queue.Queue[model.DeletedRecording]
	Playbacks *queue.Queue[model.PlaybackRun]
}

func newQueues() *queues {
	return &queues{
		Saves:     queue.New[model.SavedRecording](),
		Deletes:   queue.New[model.DeletedRecording](),
		Playbacks: queue.New[model.PlaybackRun](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	stopChan chan struct{}
	wg       sync.WaitGroup
	flushMu  sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{deps: deps, queues: newQueues()}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database connection")
	}
	if err := database.Setup(b.deps.DB, b.deps.Logger, b.deps.ServerName); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.startDBWriter()
	return nil
}

// Close stops the DB writer goroutine and writes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	b.wg.Wait()
	b.stopChan = nil
	b.Flush()
	return nil
}

// RecordSave converts and queues a save event.
func (b *Backend) RecordSave(e *core.SaveEvent) error {
	gormObj, err := convert.CoreToSavedRecording(*e)
	if err != nil {
		return err
	}
	b.queues.Saves.Push(gormObj)
	return nil
}

// RecordDelete converts and queues a delete event.
func (b *Backend) RecordDelete(e *core.DeleteEvent) error {
	b.queues.Deletes.Push(convert.CoreToDeletedRecording(*e))
	return nil
}

// RecordPlayback converts and queues a finished playback run.
func (b *Backend) RecordPlayback(run *core.PlaybackRun) error {
	b.queues.Playbacks.Push(convert.CoreToPlaybackRun(*run))
	return nil
}

// RecentSaves reads stored saves, newest first. limit <= 0 returns all.
func (b *Backend) RecentSaves(limit int) ([]core.SaveEvent, error) {
	var rows []model.SavedRecording
	q := b.deps.DB.Order("time desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query saved recordings: %w", err)
	}
	out := make([]core.SaveEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.SavedRecordingToCore(r))
	}
	return out, nil
}

// RecentPlaybacks reads stored runs, most recently stopped first.
func (b *Backend) RecentPlaybacks(limit int) ([]core.PlaybackRun, error) {
	var rows []model.PlaybackRun
	q := b.deps.DB.Order("stopped_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query playback runs: %w", err)
	}
	out := make([]core.PlaybackRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.PlaybackRunToCore(r))
	}
	return out, nil
}

// Flush drains every queue into the database.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	log := b.deps.Logger
	writeQueue(b.deps.DB, b.queues.Saves, "saved recordings", log)
	writeQueue(b.deps.DB, b.queues.Deletes, "deleted recordings", log)
	writeQueue(b.deps.DB, b.queues.Playbacks, "playback runs", log)
}

// writeQueue writes all items from a queue to the database in a transaction.
// When the batch fails, rows are retried one by one and the ones the
// database still rejects are dropped.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	if q.Empty() {
		return
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err == nil {
		if err := tx.Commit().Error; err == nil {
			return
		}
	} else {
		log.Warn("Batch insert failed, retrying rows", "table", name, "count", len(items), "error", err)
	}
	tx.Rollback()

	for i := range items {
		if err := db.Create(&items[i]).Error; err != nil {
			log.Error("Dropping row", "table", name, "error", err)
		}
	}
}

// startDBWriter starts the background goroutine that periodically drains queues into the DB.
func (b *Backend) startDBWriter() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.deps.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				b.Flush()
			}
		}
	}()
}
