package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/RecM/recm/internal/model"
	"github.com/RecM/recm/pkg/core"
)

var at = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCoreToSavedRecording(t *testing.T) {
	livery := 3
	e := core.SaveEvent{
		Time:     at,
		Name:     "drift",
		Model:    "sultan",
		Revision: 2,
		Frames:   40,
		Duration: 3900 * time.Millisecond,
		Metadata: &core.RecordingMetadata{Vehicle: &core.VehicleMetadata{PlateText: "DRIFT", Livery: &livery}},
	}

	m, err := CoreToSavedRecording(e)
	require.NoError(t, err)
	assert.Equal(t, int64(3900), m.DurationMs)
	assert.Equal(t, 2, m.Revision)
	assert.Contains(t, string(m.Metadata), `"plateText":"DRIFT"`)

	back := SavedRecordingToCore(m)
	assert.Equal(t, e.Duration, back.Duration)
	require.NotNil(t, back.Metadata)
	assert.Equal(t, 3, *back.Metadata.Vehicle.Livery)
}

func TestCoreToSavedRecording_NoMetadata(t *testing.T) {
	m, err := CoreToSavedRecording(core.SaveEvent{Name: "a", Model: "b"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.JSON("null"), m.Metadata)
	assert.Nil(t, SavedRecordingToCore(m).Metadata)
}

func TestSavedRecordingToCore_BadMetadata(t *testing.T) {
	e := SavedRecordingToCore(model.SavedRecording{Name: "a", Metadata: datatypes.JSON("{not json")})
	assert.Equal(t, "a", e.Name)
	assert.Nil(t, e.Metadata)
}

func TestCoreToPlaybackRun(t *testing.T) {
	run := core.PlaybackRun{
		SessionID:     "7f0c7d5e-2f7a-4d59-9a55-2d43b0a8e0a1",
		RecordingName: "drift_sultan_",
		Reason:        core.StopSwitching,
		StartedAt:     at,
		StoppedAt:     at.Add(time.Minute),
		Duration:      90 * time.Second,
		TrailLength:   412.5,
		Trail:         "LINESTRING Z(0 0 0,1 1 1)",
	}

	m := CoreToPlaybackRun(run)
	assert.Equal(t, "switching", m.Reason)
	assert.Equal(t, int64(90000), m.DurationMs)
	assert.Equal(t, run, PlaybackRunToCore(m))
}

func TestCoreToDeletedRecording(t *testing.T) {
	m := CoreToDeletedRecording(core.DeleteEvent{Time: at, Name: "drift", Model: "sultan", Removed: 3})
	assert.Equal(t, model.DeletedRecording{Time: at, Name: "drift", Model: "sultan", Removed: 3}, m)
}
