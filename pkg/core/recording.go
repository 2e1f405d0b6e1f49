package core

import "fmt"

// Handle is an opaque host entity reference. Zero means no entity.
type Handle int32

// RecordingKey identifies a recording group across revisions.
type RecordingKey struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

func (k RecordingKey) String() string {
	return k.Name + "_" + k.Model
}

// Base returns the file base name for a revision, e.g. "drift_sultan_001".
func (k RecordingKey) Base(revision int) string {
	return fmt.Sprintf("%s_%s_%03d", k.Name, k.Model, revision)
}

// PlaybackName is the name the host playback engine loads the recording by.
func (k RecordingKey) PlaybackName() string {
	return k.Name + "_" + k.Model + "_"
}

// Recording is one stored revision.
type Recording struct {
	RecordingKey
	Revision int `json:"revision"`
}

// Listing describes the current revision of a stored recording.
type Listing struct {
	Recording
	StartPosition Pose               `json:"startPosition"`
	Frames        int                `json:"frames"`
	Metadata      *RecordingMetadata `json:"metadata,omitempty"`
}

// VanillaGroup is a set of built-in recording ids sharing a name.
type VanillaGroup struct {
	Name string `json:"name"`
	IDs  []int  `json:"ids"`
}
