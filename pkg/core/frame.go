package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyRecording is returned when a frame sequence has no frames.
	ErrEmptyRecording = errors.New("recording has no frames")
	// ErrNonMonotonicTime is returned when frame times go backwards.
	ErrNonMonotonicTime = errors.New("frame times are not monotonic")
)

// Frame is one kinematic sample of a vehicle.
// Time is milliseconds since the first frame of the capture.
type Frame struct {
	Time          uint32  `json:"time"`
	Position      Vector3 `json:"position"`
	Velocity      Vector3 `json:"velocity"`
	Forward       Vector3 `json:"forward"`
	Right         Vector3 `json:"right"`
	SteeringAngle float32 `json:"steeringAngle"` // radians
	Gas           float32 `json:"gas"`
	Brake         float32 `json:"brake"`
	Handbrake     bool    `json:"handbrake"`
}

// Offset returns the frame time as a duration.
func (f Frame) Offset() time.Duration {
	return time.Duration(f.Time) * time.Millisecond
}

// ValidateFrames checks that a sequence can be persisted.
func ValidateFrames(frames []Frame) error {
	if len(frames) == 0 {
		return ErrEmptyRecording
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Time < frames[i-1].Time {
			return fmt.Errorf("frame %d at %dms after %dms: %w",
				i, frames[i].Time, frames[i-1].Time, ErrNonMonotonicTime)
		}
	}
	return nil
}

// Duration returns the time of the last frame.
func Duration(frames []Frame) time.Duration {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1].Offset()
}
