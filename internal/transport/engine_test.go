package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/hostsim"
	"github.com/RecM/recm/pkg/core"
)

// A game client whose store is the remote server.
func TestEngineOverClient(t *testing.T) {
	f := newFixture(t, config.TransportConfig{ChunkSize: 128})
	c := f.client(t)
	ctx := context.Background()

	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	host := hostsim.New(vc, hostsim.CatalogResolver(f.catalog))
	eng, err := engine.New(engine.Dependencies{Host: host, Store: c, Clock: vc}, engine.Config{
		CaptureInterval: 100 * time.Millisecond,
		ManualStep:      true,
	})
	require.NoError(t, err)
	require.NoError(t, eng.Init(ctx))
	defer eng.Shutdown(ctx)

	v := host.PlaceVehicle("sultan", core.Pose{})
	host.SetPlayerIntoVehicle(v)
	require.NoError(t, eng.StartCapture())
	for i := 0; i < 5; i++ {
		host.Drive(v, core.Vector3{X: float32(i * 2), Z: 30}, core.Vector3{X: 20}, core.Vector3{Y: 20}, 0)
		eng.Step()
		vc.Advance(100 * time.Millisecond)
	}

	rec, err := eng.SaveCapture(ctx, "harbour run", false)
	require.NoError(t, err)
	assert.Equal(t, "harbourrun", rec.Name)

	listings, err := eng.Recordings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, 5, listings[0].Frames)
	require.NotNil(t, listings[0].Metadata)

	_, err = eng.PlayListing(ctx, "p1", listings[0], false)
	require.NoError(t, err)
	vc.Advance(time.Second)
	eng.Step()
	assert.Empty(t, eng.Sessions())

	require.Eventually(t, func() bool {
		runs, _ := f.history.RecentPlaybacks(0)
		return len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	runs, _ := f.history.RecentPlaybacks(0)
	assert.Equal(t, core.StopCompleted, runs[0].Reason)
	assert.Equal(t, "harbourrun_sultan_", runs[0].RecordingName)
}
