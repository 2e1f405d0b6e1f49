// Package streaming defines the websocket protocol between game clients and
// the recm server.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/RecM/recm/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeSaveChunk   = "save_chunk"
	TypeSave        = "save"
	TypeList        = "list"
	TypeVanilla     = "vanilla"
	TypeDelete      = "delete"
	TypeOpen        = "open"
	TypePlaybackRun = "playback_run"
	TypeRegistered  = "registered"
	TypeReply       = "reply"
)

// Error codes carried in failed replies, or in successful replies that
// carry partial results.
const (
	CodeAlreadyExists = "already_exists"
	CodeNotFound      = "not_found"
	CodeInvalidName   = "invalid_name"
	CodeEmpty         = "empty_recording"
	CodeNotAllowed    = "not_allowed"
	CodeBadRequest    = "bad_request"
	CodeUnreadable    = "unreadable"
	CodeInternal      = "internal"
)

// Envelope wraps all messages sent over the WebSocket. Requests that expect
// an answer carry a RequestID; the reply echoes it.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Reply is the server's answer to a request.
type Reply struct {
	Type      string          `json:"type"` // always "reply"
	RequestID string          `json:"requestId"`
	OK        bool            `json:"ok"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SaveChunkPayload is one slice of a recording document. Chunks of a
// transfer are sent in order before the save request that names it.
type SaveChunkPayload struct {
	Transfer string `json:"transfer"`
	Index    int    `json:"index"`
	Data     string `json:"data"`
}

// SavePayload completes a transfer.
type SavePayload struct {
	Transfer  string                  `json:"transfer"`
	Chunks    int                     `json:"chunks"`
	Name      string                  `json:"name"`
	Model     string                  `json:"model"`
	Overwrite bool                    `json:"overwrite"`
	Metadata  *core.RecordingMetadata `json:"metadata,omitempty"`
}

type DeletePayload struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type DeleteResult struct {
	Removed int `json:"removed"`
}

type OpenPayload struct {
	Requester string `json:"requester"`
}

type OpenResult struct {
	Allowed bool `json:"allowed"`
}

// PlaybackRunPayload reports a finished session; the server does not reply.
type PlaybackRunPayload struct {
	SessionID        string          `json:"sessionId"`
	RecordingID      int             `json:"recordingId"`
	RecordingName    string          `json:"recordingName"`
	DisplayName      string          `json:"displayName"`
	Model            string          `json:"model,omitempty"`
	PlayerControlled bool            `json:"playerControlled"`
	Reason           core.StopReason `json:"reason"`
	StartedAt        int64           `json:"startedAt"` // unix ms
	StoppedAt        int64           `json:"stoppedAt"`
	DurationMs       int64           `json:"durationMs"`
	TrailLength      float64         `json:"trailLength"`
	Trail            string          `json:"trail,omitempty"`
}

// NewPlaybackRunPayload flattens a run for the wire.
func NewPlaybackRunPayload(r *core.PlaybackRun) PlaybackRunPayload {
	return PlaybackRunPayload{
		SessionID:        r.SessionID,
		RecordingID:      r.RecordingID,
		RecordingName:    r.RecordingName,
		DisplayName:      r.DisplayName,
		Model:            r.Model,
		PlayerControlled: r.PlayerControlled,
		Reason:           r.Reason,
		StartedAt:        r.StartedAt.UnixMilli(),
		StoppedAt:        r.StoppedAt.UnixMilli(),
		DurationMs:       r.Duration.Milliseconds(),
		TrailLength:      r.TrailLength,
		Trail:            r.Trail,
	}
}

// Run converts the payload back into a run.
func (p PlaybackRunPayload) Run() *core.PlaybackRun {
	return &core.PlaybackRun{
		SessionID:        p.SessionID,
		RecordingID:      p.RecordingID,
		RecordingName:    p.RecordingName,
		DisplayName:      p.DisplayName,
		Model:            p.Model,
		PlayerControlled: p.PlayerControlled,
		Reason:           p.Reason,
		StartedAt:        time.UnixMilli(p.StartedAt).UTC(),
		StoppedAt:        time.UnixMilli(p.StoppedAt).UTC(),
		Duration:         time.Duration(p.DurationMs) * time.Millisecond,
		TrailLength:      p.TrailLength,
		Trail:            p.Trail,
	}
}

// RegisteredPayload announces a recording that appeared in the catalog.
type RegisteredPayload struct {
	Recording core.Recording `json:"recording"`
}
