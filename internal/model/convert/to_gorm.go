// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/RecM/recm/internal/model"
	"github.com/RecM/recm/pkg/core"
)

// metadataToJSON converts recording metadata to datatypes.JSON for DB storage.
// Missing metadata is stored as JSON null.
func metadataToJSON(m *core.RecordingMetadata) (datatypes.JSON, error) {
	if m == nil {
		return datatypes.JSON("null"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return datatypes.JSON(data), nil
}

// CoreToSavedRecording converts a core.SaveEvent to a GORM model.SavedRecording.
func CoreToSavedRecording(e core.SaveEvent) (model.SavedRecording, error) {
	meta, err := metadataToJSON(e.Metadata)
	if err != nil {
		return model.SavedRecording{}, err
	}
	return model.SavedRecording{
		Time:       e.Time,
		Name:       e.Name,
		Model:      e.Model,
		Revision:   e.Revision,
		Frames:     e.Frames,
		DurationMs: e.Duration.Milliseconds(),
		Overwrite:  e.Overwrite,
		Metadata:   meta,
	}, nil
}

// CoreToDeletedRecording converts a core.DeleteEvent to a GORM model.DeletedRecording.
func CoreToDeletedRecording(e core.DeleteEvent) model.DeletedRecording {
	return model.DeletedRecording{
		Time:    e.Time,
		Name:    e.Name,
		Model:   e.Model,
		Removed: e.Removed,
	}
}

// CoreToPlaybackRun converts a core.PlaybackRun to a GORM model.PlaybackRun.
func CoreToPlaybackRun(r core.PlaybackRun) model.PlaybackRun {
	return model.PlaybackRun{
		SessionID:        r.SessionID,
		RecordingID:      r.RecordingID,
		RecordingName:    r.RecordingName,
		DisplayName:      r.DisplayName,
		Model:            r.Model,
		PlayerControlled: r.PlayerControlled,
		Reason:           string(r.Reason),
		StartedAt:        r.StartedAt,
		StoppedAt:        r.StoppedAt,
		DurationMs:       r.Duration.Milliseconds(),
		TrailLength:      r.TrailLength,
		Trail:            r.Trail,
	}
}
