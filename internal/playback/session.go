package playback

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RecM/recm/pkg/core"
)

// Session is one live playback of a recording on a vehicle.
type Session struct {
	ID               uuid.UUID
	RecordingID      int
	RecordingName    string
	DisplayName      string
	PlayerControlled bool
	VehicleModel     string
	StartPosition    *core.Pose

	Vehicle     core.Handle
	DummyDriver core.Handle
	// StartReference is the clock time the recording would have started at
	// had it always played at the current speed.
	StartReference time.Time
	Duration       time.Duration
	Trail          []core.Vector3
	StartedAt      time.Time
}

// NewSession creates a session identity. An empty displayName falls back to
// the recording name.
func NewSession(recordingID int, recordingName string, playerControlled bool, model string, start *core.Pose, displayName string) *Session {
	if strings.TrimSpace(displayName) == "" {
		displayName = recordingName
	}
	return &Session{
		ID:               uuid.New(),
		RecordingID:      recordingID,
		RecordingName:    recordingName,
		DisplayName:      displayName,
		PlayerControlled: playerControlled,
		VehicleModel:     model,
		StartPosition:    start,
	}
}

// Kind labels the session for progress lines.
func (s *Session) Kind() string {
	if s.PlayerControlled {
		return "Player"
	}
	return "Autonomous"
}
