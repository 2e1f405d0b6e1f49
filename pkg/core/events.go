// pkg/core/events.go
package core

import "time"

// StopReason is why a playback session ended.
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopCancelled StopReason = "cancelled"
	StopSwitching StopReason = "switching"
)

// SaveEvent is written to history whenever a recording revision is stored.
type SaveEvent struct {
	Time      time.Time
	Name      string
	Model     string
	Revision  int
	Frames    int
	Duration  time.Duration
	Overwrite bool
	Metadata  *RecordingMetadata
}

// DeleteEvent is written to history when a recording group is removed.
type DeleteEvent struct {
	Time    time.Time
	Name    string
	Model   string
	Removed int
}

// PlaybackRun summarises one finished playback session.
type PlaybackRun struct {
	SessionID        string
	RecordingID      int
	RecordingName    string
	DisplayName      string
	Model            string
	PlayerControlled bool
	Reason           StopReason
	StartedAt        time.Time
	StoppedAt        time.Time
	Duration         time.Duration // recording length
	TrailLength      float64       // metres along the sampled trail
	Trail            string        // WKT LINESTRING Z of the sampled trail
}
