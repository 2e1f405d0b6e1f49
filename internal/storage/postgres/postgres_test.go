package postgres

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/RecM/recm/internal/database"
	"github.com/RecM/recm/internal/model"
	"github.com/RecM/recm/internal/storage"
	"github.com/RecM/recm/pkg/core"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestInit_UnreachableServer(t *testing.T) {
	b := New(Dependencies{Config: database.PostgresConfig{
		Host: "127.0.0.1", Port: "1", Username: "recm", Password: "x", Database: "recm",
	}})
	err := b.Init()
	require.Error(t, err)
	assert.NoError(t, b.Close())
}

func TestInjectedDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b := New(Dependencies{DB: db, ServerName: "test", FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordSave(&core.SaveEvent{Time: time.Now(), Name: "drift", Model: "sultan", Revision: 1}))
	b.Flush()

	var count int64
	require.NoError(t, db.Model(&model.SavedRecording{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var info model.RecmInfo
	require.NoError(t, db.First(&info).Error)
	assert.Equal(t, "test", info.ServerName)

	require.NoError(t, b.Close())
}
