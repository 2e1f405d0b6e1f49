package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/storage/memory"
	"github.com/RecM/recm/internal/transport"
	"github.com/RecM/recm/pkg/core"
	"github.com/RecM/recm/pkg/streaming"
)

type fixture struct {
	fs      afero.Fs
	catalog *catalog.Catalog
	history *memory.Backend
	server  *transport.Server
	http    *httptest.Server
	cfg     config.TransportConfig
}

func newFixture(t *testing.T, cfg config.TransportConfig) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	cat, err := catalog.New(fs, catalog.Config{Dir: "stream", VanillaManifest: "vanilla.json"}, nil)
	require.NoError(t, err)
	history := memory.New(config.MemoryConfig{})
	store := engine.NewLocalStore(engine.LocalStoreDependencies{
		Catalog: cat, History: history, AllowOpen: cfg.AllowOpen,
	})

	srv, err := transport.NewServer(transport.ServerDependencies{
		Store: store, Catalog: cat, History: history,
	}, cfg)
	require.NoError(t, err)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hs.Close()
	})
	cfg.URL = "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	return &fixture{fs: fs, catalog: cat, history: history, server: srv, http: hs, cfg: cfg}
}

func (f *fixture) client(t *testing.T) *transport.Client {
	t.Helper()
	c := transport.NewClient(f.cfg, nil)
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.http.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(transport.SecretHeader, f.cfg.Secret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func frames(n int) []core.Frame {
	out := make([]core.Frame, n)
	for i := range out {
		out[i] = core.Frame{
			Time:     uint32(i * 100),
			Position: core.Vector3{X: float32(i), Y: 2, Z: 30},
			Velocity: core.Vector3{X: 10},
			Forward:  core.Vector3{Y: 1},
			Right:    core.Vector3{X: 1},
			Gas:      0.5,
		}
	}
	return out
}

func saveReq(name, model string, n int, overwrite bool) engine.SaveRequest {
	return engine.SaveRequest{
		Key:       core.RecordingKey{Name: name, Model: model},
		Frames:    frames(n),
		Overwrite: overwrite,
		Metadata:  &core.RecordingMetadata{Vehicle: &core.VehicleMetadata{PlateText: "RECM"}},
	}
}

func TestClient_SaveListDelete(t *testing.T) {
	f := newFixture(t, config.TransportConfig{ChunkSize: 256})
	c := f.client(t)
	ctx := context.Background()

	// 200 frames spread over many chunks
	rec, err := c.Save(ctx, saveReq("drift", "sultan", 200, false))
	require.NoError(t, err)
	assert.Equal(t, core.Recording{RecordingKey: core.RecordingKey{Name: "drift", Model: "sultan"}, Revision: 1}, rec)

	_, stored, err := f.catalog.Get(rec.RecordingKey)
	require.NoError(t, err)
	require.Len(t, stored, 200)
	assert.Equal(t, uint32(19900), stored[199].Time)
	assert.Equal(t, float32(199), stored[199].Position.X)

	listings, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, 200, listings[0].Frames)
	require.NotNil(t, listings[0].Metadata)
	assert.Equal(t, "RECM", listings[0].Metadata.Vehicle.PlateText)

	_, err = c.Save(ctx, saveReq("drift", "sultan", 3, false))
	assert.ErrorIs(t, err, catalog.ErrAlreadyExists)
	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, streaming.CodeAlreadyExists, remote.Code)

	rec, err = c.Save(ctx, saveReq("drift", "sultan", 3, true))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Revision)

	n, err := c.Delete(ctx, rec.RecordingKey)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Delete(ctx, rec.RecordingKey)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	listings, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)

	saves, err := f.history.RecentSaves(0)
	require.NoError(t, err)
	assert.Len(t, saves, 2)
	assert.Len(t, f.history.Deletes(), 1)
}

func TestClient_SaveRejectsBadInput(t *testing.T) {
	f := newFixture(t, config.TransportConfig{})
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Save(ctx, engine.SaveRequest{Key: core.RecordingKey{Name: "x", Model: "sultan"}})
	assert.ErrorIs(t, err, core.ErrEmptyRecording)

	_, err = c.Save(ctx, saveReq("bad_name", "sultan", 2, false))
	assert.ErrorIs(t, err, catalog.ErrInvalidName)
}

func TestClient_ListKeepsReadableRecordings(t *testing.T) {
	f := newFixture(t, config.TransportConfig{})
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Save(ctx, saveReq("drift", "sultan", 3, false))
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(f.fs, "stream/broken_adder_001.yvr", []byte("RECM"), 0o644))

	listings, err := c.List(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrUnreadable)
	assert.Contains(t, err.Error(), "broken_adder_001")
	require.Len(t, listings, 1)
	assert.Equal(t, core.RecordingKey{Name: "drift", Model: "sultan"}, listings[0].RecordingKey)

	// the other requests are unaffected
	_, err = c.Vanilla(ctx)
	require.NoError(t, err)
}

func TestClient_VanillaAndOpen(t *testing.T) {
	f := newFixture(t, config.TransportConfig{AllowOpen: []string{"steam:1"}})
	require.NoError(t, afero.WriteFile(f.fs, "vanilla.json", []byte(`["Airport001","Airport004"]`), 0o644))
	c := f.client(t)
	ctx := context.Background()

	groups, err := c.Vanilla(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.VanillaGroup{{Name: "Airport", IDs: []int{1, 4}}}, groups)

	ok, err := c.CanOpen(ctx, "steam:1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.CanOpen(ctx, "steam:2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_RecordPlayback(t *testing.T) {
	f := newFixture(t, config.TransportConfig{})
	c := f.client(t)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.RecordPlayback(&core.PlaybackRun{
		SessionID:     "b7f3",
		RecordingID:   2,
		RecordingName: "drift_sultan_",
		Reason:        core.StopCompleted,
		StartedAt:     started,
		StoppedAt:     started.Add(4 * time.Second),
		Duration:      4 * time.Second,
		TrailLength:   120.5,
	}))

	require.Eventually(t, func() bool {
		runs, _ := f.history.RecentPlaybacks(0)
		return len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	runs, _ := f.history.RecentPlaybacks(0)
	assert.Equal(t, "drift_sultan_", runs[0].RecordingName)
	assert.Equal(t, core.StopCompleted, runs[0].Reason)
	assert.True(t, runs[0].StartedAt.Equal(started))
	assert.Equal(t, 4*time.Second, runs[0].Duration)
}

func TestServer_ShutdownFinishesQueuedRuns(t *testing.T) {
	f := newFixture(t, config.TransportConfig{})
	c := f.client(t)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.RecordPlayback(&core.PlaybackRun{
		SessionID:     "c21a",
		RecordingName: "lap_adder_",
		Reason:        core.StopCancelled,
		StartedAt:     started,
		StoppedAt:     started.Add(time.Second),
	}))
	// a connection's commands are dispatched in order, so the run is queued
	// once this reply arrives
	_, err := c.List(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.server.Shutdown(context.Background()))
	runs, err := f.history.RecentPlaybacks(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "lap_adder_", runs[0].RecordingName)

	late := f.client(t)
	_, err = late.List(context.Background())
	assert.Error(t, err)
}

func TestServer_BroadcastsRegistrations(t *testing.T) {
	f := newFixture(t, config.TransportConfig{})
	saver := f.client(t)
	watcher := f.client(t)

	require.Eventually(t, func() bool { return f.server.Peers() == 2 }, 2*time.Second, 10*time.Millisecond)

	rec, err := saver.Save(context.Background(), saveReq("lap", "adder", 5, false))
	require.NoError(t, err)

	select {
	case got := <-watcher.Registered():
		assert.Equal(t, rec, got)
	case <-time.After(2 * time.Second):
		t.Fatal("registration not received")
	}

	// the same revision is announced once
	f.server.Broadcast(rec)
	select {
	case got := <-watcher.Registered():
		t.Fatalf("duplicate registration %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_Secret(t *testing.T) {
	f := newFixture(t, config.TransportConfig{Secret: "s3cret"})

	bad := f.cfg
	bad.Secret = "wrong"
	assert.Error(t, transport.NewClient(bad, nil).Connect())

	c := f.client(t)
	_, err := c.List(context.Background())
	assert.NoError(t, err)

	resp, err := http.Get(f.http.URL + "/recordings")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_RequestAfterClose(t *testing.T) {
	f := newFixture(t, config.TransportConfig{})
	c := transport.NewClient(f.cfg, nil)
	require.NoError(t, c.Connect())
	require.NoError(t, c.Close())

	_, err := c.List(context.Background())
	assert.Error(t, err)
}

func TestAPI(t *testing.T) {
	f := newFixture(t, config.TransportConfig{Secret: "k"})
	store := engine.NewLocalStore(engine.LocalStoreDependencies{Catalog: f.catalog, History: f.history})
	_, err := store.Save(context.Background(), saveReq("drift", "sultan", 4, false))
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		resp := f.get(t, "/recordings")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var listings []core.Listing
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listings))
		require.Len(t, listings, 1)
		assert.Equal(t, "drift", listings[0].Name)
	})

	t.Run("get", func(t *testing.T) {
		resp := f.get(t, "/recordings/drift/sultan")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var l core.Listing
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&l))
		assert.Equal(t, 4, l.Frames)
	})

	t.Run("get xml", func(t *testing.T) {
		resp := f.get(t, "/recordings/drift/sultan?format=xml")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		doc, err := codec.ParseDocument(body)
		require.NoError(t, err)
		got, err := doc.Frames()
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})

	t.Run("missing", func(t *testing.T) {
		resp := f.get(t, "/recordings/nope/sultan")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("history", func(t *testing.T) {
		resp := f.get(t, "/history/saves?limit=5")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var saves []core.SaveEvent
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&saves))
		require.Len(t, saves, 1)
		assert.Equal(t, 4, saves[0].Frames)

		resp = f.get(t, "/history/playbacks")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, f.http.URL+"/recordings/drift/sultan", nil)
		require.NoError(t, err)
		req.Header.Set(transport.SecretHeader, "k")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res streaming.DeleteResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, 1, res.Removed)
	})

	t.Run("health", func(t *testing.T) {
		resp := f.get(t, "/healthz")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
