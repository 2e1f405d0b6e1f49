package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/pkg/core"
)

type fakeStore struct {
	listings []core.Listing
	vanilla  []core.VanillaGroup
	listErr  error
}

func (f *fakeStore) Save(context.Context, engine.SaveRequest) (core.Recording, error) {
	return core.Recording{}, errors.New("not implemented")
}
func (f *fakeStore) List(context.Context) ([]core.Listing, error) { return f.listings, f.listErr }
func (f *fakeStore) Vanilla(context.Context) ([]core.VanillaGroup, error) {
	return f.vanilla, nil
}
func (f *fakeStore) Delete(context.Context, core.RecordingKey) (int, error) { return 0, nil }
func (f *fakeStore) CanOpen(context.Context, string) (bool, error)          { return true, nil }

type peers int

func (p peers) Peers() int { return int(p) }

func TestGetStatus(t *testing.T) {
	store := &fakeStore{
		listings: []core.Listing{{Frames: 10}, {Frames: 5}},
		vanilla:  []core.VanillaGroup{{Name: "Airport", IDs: []int{1, 2, 3}}},
		listErr:  errors.New("one bad sidecar"),
	}
	s := NewService(Dependencies{Store: store, Peers: peers(3), Started: time.Now().Add(-time.Minute)})

	st := s.GetStatus(context.Background())
	assert.Equal(t, 3, st.Clients)
	assert.Equal(t, 2, st.Recordings)
	assert.Equal(t, 15, st.Frames)
	assert.Equal(t, 3, st.VanillaIDs)
	assert.Equal(t, "one bad sidecar", st.CatalogError)
	assert.Equal(t, "1m0s", st.Uptime)
}

func TestWriteStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{Store: &fakeStore{listings: []core.Listing{{Frames: 2}}}, StatusPath: path})

	_, err := s.WriteStatus(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, 1, st.Recordings)
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{Peers: peers(1), StatusPath: path, Interval: 10 * time.Millisecond})

	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}
