package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&RecmInfo{},
	&SavedRecording{},
	&DeletedRecording{},
	&PlaybackRun{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// RecmInfo identifies the server instance that owns the history tables.
type RecmInfo struct {
	gorm.Model
	ServerName  string `json:"serverName" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
}

func (*RecmInfo) TableName() string {
	return "recm_infos"
}

////////////////////////
// HISTORY MODELS
////////////////////////

// SavedRecording is one stored revision of a recording group.
type SavedRecording struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time      `json:"time" gorm:"index:idx_saved_time"`
	Name       string         `json:"name" gorm:"size:64;index:idx_saved_key"`
	Model      string         `json:"model" gorm:"size:64;index:idx_saved_key"`
	Revision   int            `json:"revision"`
	Frames     int            `json:"frames"`
	DurationMs int64          `json:"durationMs"`
	Overwrite  bool           `json:"overwrite"`
	Metadata   datatypes.JSON `json:"metadata"`
}

func (*SavedRecording) TableName() string {
	return "saved_recordings"
}

// DeletedRecording records the removal of every revision of a group.
type DeletedRecording struct {
	ID      uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time    time.Time `json:"time" gorm:"index:idx_deleted_time"`
	Name    string    `json:"name" gorm:"size:64"`
	Model   string    `json:"model" gorm:"size:64"`
	Removed int       `json:"removed"`
}

func (*DeletedRecording) TableName() string {
	return "deleted_recordings"
}

// PlaybackRun is a finished playback session.
type PlaybackRun struct {
	ID               uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID        string    `json:"sessionId" gorm:"size:36;uniqueIndex"`
	RecordingID      int       `json:"recordingId"`
	RecordingName    string    `json:"recordingName" gorm:"size:128;index:idx_run_recording"`
	DisplayName      string    `json:"displayName" gorm:"size:128"`
	Model            string    `json:"model" gorm:"size:64"`
	PlayerControlled bool      `json:"playerControlled"`
	Reason           string    `json:"reason" gorm:"size:16"`
	StartedAt        time.Time `json:"startedAt" gorm:"index:idx_run_started"`
	StoppedAt        time.Time `json:"stoppedAt"`
	DurationMs       int64     `json:"durationMs"`
	TrailLength      float64   `json:"trailLength"`
	// Trail is the sampled path as WKT; PostGIS is not required.
	Trail string `json:"trail" gorm:"type:text"`
}

func (*PlaybackRun) TableName() string {
	return "playback_runs"
}
