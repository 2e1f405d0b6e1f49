package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/database"
	"github.com/RecM/recm/internal/model"
	"github.com/RecM/recm/internal/storage"
	"github.com/RecM/recm/pkg/core"
)

var (
	_ storage.Backend   = (*Backend)(nil)
	_ storage.Queryable = (*Backend)(nil)
)

func TestClose_DumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "recm.db")
	b, err := New(config.SQLiteConfig{DumpPath: path}, nil, "test", time.Hour)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordPlayback(&core.PlaybackRun{SessionID: "s1", Reason: core.StopCompleted, StoppedAt: time.Now()}))
	require.NoError(t, b.Close())

	disk, err := database.GetSqliteDB(path)
	require.NoError(t, err)
	var runs []model.PlaybackRun
	require.NoError(t, disk.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Reason)
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recm.db")
	b, err := New(config.SQLiteConfig{DumpPath: path, DumpInterval: 20 * time.Millisecond}, nil, "test", time.Hour)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordDelete(&core.DeleteEvent{Time: time.Now(), Name: "drift", Model: "sultan", Removed: 1}))
	assert.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNoDumpPath(t *testing.T) {
	b, err := New(config.SQLiteConfig{}, nil, "test", time.Hour)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordSave(&core.SaveEvent{Time: time.Now(), Name: "drift", Model: "sultan", Revision: 1}))
	b.Flush()

	saves, err := b.RecentSaves(1)
	require.NoError(t, err)
	assert.Len(t, saves, 1)
	require.NoError(t, b.Close())
}
