package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/playback"
	"github.com/RecM/recm/pkg/core"
	"github.com/RecM/recm/pkg/streaming"
)

const (
	defaultChunkSize      = 16 * 1024
	defaultRequestTimeout = 10 * time.Second
	registeredChSize      = 64
)

// ErrClientClosed is returned by requests made after Close.
var ErrClientClosed = errors.New("transport client closed")

var (
	_ engine.Store         = (*Client)(nil)
	_ playback.RunRecorder = (*Client)(nil)
)

// Client is the game-side store: every catalog operation is a request to
// the recm server.
type Client struct {
	conn       *connection
	cfg        config.TransportConfig
	registered chan core.Recording
	logger     *slog.Logger
}

// NewClient creates a client. Nothing is dialled until Connect.
func NewClient(cfg config.TransportConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	c := &Client{
		cfg:        cfg,
		registered: make(chan core.Recording, registeredChSize),
		logger:     logger,
	}
	c.conn = newConnection(logger, c.onMessage)
	return c
}

// Connect dials the server.
func (c *Client) Connect() error {
	return c.conn.dial(c.cfg.URL, c.cfg.Secret)
}

// Close disconnects from the server.
func (c *Client) Close() error {
	return c.conn.close()
}

// Registered delivers recordings announced by the server.
func (c *Client) Registered() <-chan core.Recording {
	return c.registered
}

func (c *Client) onMessage(env streaming.Envelope) {
	if env.Type != streaming.TypeRegistered {
		c.logger.Debug("Unhandled message", "type", env.Type)
		return
	}
	var p streaming.RegisteredPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logger.Debug("Malformed registration", "error", err)
		return
	}
	select {
	case c.registered <- p.Recording:
	default:
		c.logger.Debug("Registration channel full, dropping", "recording", p.Recording.Base(p.Recording.Revision))
	}
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType, requestID string, payload any) ([]byte, error) {
	env := streaming.Envelope{Type: msgType, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope pushes a message that expects no reply.
func (c *Client) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, "", payload)
	if err != nil {
		return err
	}
	if !c.conn.send(data) {
		return fmt.Errorf("%s: send queue full", msgType)
	}
	return nil
}

// request sends a message and waits for its reply, decoding the reply
// payload into out when out is non-nil.
func (c *Client) request(ctx context.Context, msgType string, payload, out any) error {
	id := uuid.NewString()
	data, err := marshalEnvelope(msgType, id, payload)
	if err != nil {
		return err
	}
	replies, forget := c.conn.await(id)
	defer forget()

	if !c.conn.send(data) {
		return fmt.Errorf("%s: send queue full", msgType)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		if !reply.OK {
			return &RemoteError{Code: reply.Code, Message: reply.Message}
		}
		if out != nil && len(reply.Payload) > 0 {
			if err := json.Unmarshal(reply.Payload, out); err != nil {
				return fmt.Errorf("decode %s reply: %w", msgType, err)
			}
		}
		if reply.Code != "" {
			// out holds partial results
			return &RemoteError{Code: reply.Code, Message: reply.Message}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for reply to %q", msgType)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.done:
		return ErrClientClosed
	}
}

// Save uploads the recording as an XML document in chunks, then asks the
// server to store it.
func (c *Client) Save(ctx context.Context, req engine.SaveRequest) (core.Recording, error) {
	if len(req.Frames) == 0 {
		return core.Recording{}, core.ErrEmptyRecording
	}
	doc, err := codec.NewDocument(req.Frames).XML()
	if err != nil {
		return core.Recording{}, err
	}

	transfer := uuid.NewString()
	chunks := 0
	for start := 0; start < len(doc); start += c.cfg.ChunkSize {
		end := min(start+c.cfg.ChunkSize, len(doc))
		if err := c.sendEnvelope(streaming.TypeSaveChunk, streaming.SaveChunkPayload{
			Transfer: transfer,
			Index:    chunks,
			Data:     string(doc[start:end]),
		}); err != nil {
			return core.Recording{}, err
		}
		chunks++
	}

	var rec core.Recording
	err = c.request(ctx, streaming.TypeSave, streaming.SavePayload{
		Transfer:  transfer,
		Chunks:    chunks,
		Name:      req.Key.Name,
		Model:     req.Key.Model,
		Overwrite: req.Overwrite,
		Metadata:  req.Metadata,
	}, &rec)
	if err != nil {
		return core.Recording{}, err
	}
	c.logger.Debug("Recording uploaded", "recording", rec.Base(rec.Revision), "bytes", len(doc), "chunks", chunks)
	return rec, nil
}

func (c *Client) List(ctx context.Context) ([]core.Listing, error) {
	var listings []core.Listing
	err := c.request(ctx, streaming.TypeList, nil, &listings)
	return listings, err
}

func (c *Client) Vanilla(ctx context.Context) ([]core.VanillaGroup, error) {
	var groups []core.VanillaGroup
	err := c.request(ctx, streaming.TypeVanilla, nil, &groups)
	return groups, err
}

func (c *Client) Delete(ctx context.Context, key core.RecordingKey) (int, error) {
	var res streaming.DeleteResult
	if err := c.request(ctx, streaming.TypeDelete, streaming.DeletePayload{Name: key.Name, Model: key.Model}, &res); err != nil {
		return 0, err
	}
	return res.Removed, nil
}

func (c *Client) CanOpen(ctx context.Context, requester string) (bool, error) {
	var res streaming.OpenResult
	if err := c.request(ctx, streaming.TypeOpen, streaming.OpenPayload{Requester: requester}, &res); err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// RecordPlayback reports a finished run without waiting for the server.
func (c *Client) RecordPlayback(run *core.PlaybackRun) error {
	return c.sendEnvelope(streaming.TypePlaybackRun, streaming.NewPlaybackRunPayload(run))
}
