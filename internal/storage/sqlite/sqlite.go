// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the SQLite-specific concerns are creating the
// in-memory DB and the periodic and final disk dump.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/database"
	gormstorage "github.com/RecM/recm/internal/storage/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg config.SQLiteConfig, logger *slog.Logger, serverName string, flushInterval time.Duration) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.GetSqliteDB("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        logger,
		ServerName:    serverName,
		FlushInterval: flushInterval,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, flushes the writer and dumps a final
// snapshot when a dump path is configured.
func (b *Backend) Close() error {
	close(b.stopChan)
	b.wg.Wait()
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" {
		return nil
	}
	return b.dump()
}

func (b *Backend) dump() error {
	if err := os.MkdirAll(filepath.Dir(b.cfg.DumpPath), 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			b.Flush()
			if err := b.dump(); err != nil {
				b.log.Error("Error dumping to disk", "path", b.cfg.DumpPath, "error", err)
			} else {
				b.log.Debug("Dumped to disk", "path", b.cfg.DumpPath, "took", time.Since(start))
			}
		}
	}
}
