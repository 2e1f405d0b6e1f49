package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/model"
)

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Username: "recm", Password: "pw", Database: "history"}
	assert.Equal(t, "host=db port=5432 user=recm password=pw dbname=history sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestSetup_Sqlite(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, Setup(db, nil, "test"))
	require.NoError(t, Setup(db, nil, "test"), "setup is idempotent")

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}

	var infos []model.RecmInfo
	require.NoError(t, db.Find(&infos).Error)
	require.Len(t, infos, 1)
	assert.Equal(t, "test", infos[0].ServerName)
}

func TestGetSqliteDB_MemoryDatabasesAreIsolated(t *testing.T) {
	a, err := GetSqliteDB("")
	require.NoError(t, err)
	b, err := GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, Setup(a, nil, "a"))
	assert.False(t, b.Migrator().HasTable(&model.PlaybackRun{}))
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)
	require.NoError(t, Setup(db, nil, "dump"))
	require.NoError(t, db.Create(&model.DeletedRecording{Name: "drift", Model: "sultan", Removed: 2}).Error)

	out := filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, DumpMemoryDBToDisk(db, out))
	require.NoError(t, DumpMemoryDBToDisk(db, out), "existing dump is replaced")

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	disk, err := GetSqliteDB(out)
	require.NoError(t, err)
	var rows []model.DeletedRecording
	require.NoError(t, disk.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Removed)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}
