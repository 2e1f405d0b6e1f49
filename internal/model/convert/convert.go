package convert

import (
	"encoding/json"
	"time"

	"github.com/RecM/recm/internal/model"
	"github.com/RecM/recm/pkg/core"
)

// SavedRecordingToCore converts a GORM model.SavedRecording back to a core.SaveEvent.
// Unreadable metadata is dropped rather than failing the whole row.
func SavedRecordingToCore(m model.SavedRecording) core.SaveEvent {
	var meta *core.RecordingMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return core.SaveEvent{
		Time:      m.Time,
		Name:      m.Name,
		Model:     m.Model,
		Revision:  m.Revision,
		Frames:    m.Frames,
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
		Overwrite: m.Overwrite,
		Metadata:  meta,
	}
}

// PlaybackRunToCore converts a GORM model.PlaybackRun back to a core.PlaybackRun.
func PlaybackRunToCore(m model.PlaybackRun) core.PlaybackRun {
	return core.PlaybackRun{
		SessionID:        m.SessionID,
		RecordingID:      m.RecordingID,
		RecordingName:    m.RecordingName,
		DisplayName:      m.DisplayName,
		Model:            m.Model,
		PlayerControlled: m.PlayerControlled,
		Reason:           core.StopReason(m.Reason),
		StartedAt:        m.StartedAt,
		StoppedAt:        m.StoppedAt,
		Duration:         time.Duration(m.DurationMs) * time.Millisecond,
		TrailLength:      m.TrailLength,
		Trail:            m.Trail,
	}
}
