package main

import (
	"fmt"

	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/database"
	"github.com/RecM/recm/internal/influx"
	"github.com/RecM/recm/internal/storage"
	influxstorage "github.com/RecM/recm/internal/storage/influx"
	"github.com/RecM/recm/internal/storage/memory"
	pgstorage "github.com/RecM/recm/internal/storage/postgres"
	sqlitestorage "github.com/RecM/recm/internal/storage/sqlite"
)

// initHistory creates and initializes the configured history backends.
func initHistory() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		Logger.Error("Failed to create history backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize history backend", "error", err)
		_ = backend.Close()
		return nil, err
	}
	Logger.Info("History storage ready", "backends", storageCfg.Backends)
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	if len(storageCfg.Backends) == 0 {
		return storage.Discard{}, nil
	}

	var backends storage.Multi
	for _, name := range storageCfg.Backends {
		b, err := createOne(name, storageCfg)
		if err != nil {
			_ = backends.Close()
			return nil, err
		}
		backends = append(backends, b)
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return backends, nil
}

func createOne(name string, storageCfg config.StorageConfig) (storage.Backend, error) {
	serverName := config.GetString("serverName")

	switch name {
	case "memory":
		Logger.Info("Memory history backend selected", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	case "sqlite":
		backend, err := sqlitestorage.New(storageCfg.SQLite, Logger.With("backend", "sqlite"), serverName, storageCfg.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite history backend selected", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "postgres":
		db := config.GetDBConfig()
		Logger.Info("Postgres history backend selected", "host", db.Host, "database", db.Database)
		return pgstorage.New(pgstorage.Dependencies{
			Config: database.PostgresConfig{
				Host:     db.Host,
				Port:     db.Port,
				Username: db.Username,
				Password: db.Password,
				Database: db.Database,
				SSLMode:  db.SSLMode,
			},
			Logger:        Logger.With("backend", "postgres"),
			ServerName:    serverName,
			FlushInterval: storageCfg.FlushInterval,
		}), nil

	case "influx":
		ic := config.GetInfluxConfig()
		Logger.Info("InfluxDB history backend selected", "host", ic.Host, "org", ic.Org)
		return influxstorage.New(influx.NewManager(influx.Config{
			Protocol:      ic.Protocol,
			Host:          ic.Host,
			Port:          ic.Port,
			Token:         ic.Token,
			Org:           ic.Org,
			RetentionDays: ic.RetentionDays,
			BackupPath:    ic.BackupPath,
		}, Logger.With("backend", "influx"))), nil

	default:
		return nil, fmt.Errorf("unknown history backend %q", name)
	}
}
