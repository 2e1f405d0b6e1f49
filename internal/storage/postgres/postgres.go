// Package postgres implements the storage.Backend interface on a PostgreSQL
// history database, using the queued GORM writer.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/RecM/recm/internal/database"
	gormstorage "github.com/RecM/recm/internal/storage/gorm"
)

// Dependencies holds all dependencies for the postgres storage backend.
// When DB is nil, Init connects using Config.
type Dependencies struct {
	DB            *gorm.DB
	Config        database.PostgresConfig
	Logger        *slog.Logger
	ServerName    string
	FlushInterval time.Duration
}

// Backend wraps the GORM backend with connection management.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// Init connects when needed, then migrates and starts the writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
		b.deps.Logger.Info("Connected to postgres", "host", b.deps.Config.Host, "database", b.deps.Config.Database)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            b.deps.DB,
		Logger:        b.deps.Logger,
		ServerName:    b.deps.ServerName,
		FlushInterval: b.deps.FlushInterval,
	})
	return b.Backend.Init()
}

// Close stops the writer and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
