// Package api is a client for the recording server's admin HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RecM/recm/internal/transport"
	"github.com/RecM/recm/pkg/core"
	"github.com/RecM/recm/pkg/streaming"
)

// Client handles communication with the recording server.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the server is reachable and returns its client count.
func (c *Client) Healthcheck(ctx context.Context) (int, error) {
	var out struct {
		Clients int `json:"clients"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/healthz", nil, "", &out); err != nil {
		return 0, fmt.Errorf("healthcheck: %w", err)
	}
	return out.Clients, nil
}

// Recordings lists the current revision of every group. A non-empty warning
// means some files could not be read.
func (c *Client) Recordings(ctx context.Context) (listings []core.Listing, warning string, err error) {
	h, err := c.do(ctx, http.MethodGet, "/recordings", nil, "", &listings)
	if err != nil {
		return nil, "", err
	}
	return listings, h.Get("X-Recm-Warning"), nil
}

// Recording returns one group's current listing.
func (c *Client) Recording(ctx context.Context, key core.RecordingKey) (core.Listing, error) {
	var l core.Listing
	_, err := c.do(ctx, http.MethodGet, recordingPath(key), nil, "", &l)
	return l, err
}

// RecordingXML returns the current revision as an XML frame document.
func (c *Client) RecordingXML(ctx context.Context, key core.RecordingKey) ([]byte, error) {
	var buf []byte
	_, err := c.do(ctx, http.MethodGet, recordingPath(key)+"?format=xml", nil, "", &buf)
	return buf, err
}

// Delete removes every revision of a group.
func (c *Client) Delete(ctx context.Context, key core.RecordingKey) (int, error) {
	var res streaming.DeleteResult
	if _, err := c.do(ctx, http.MethodDelete, recordingPath(key), nil, "", &res); err != nil {
		return 0, err
	}
	return res.Removed, nil
}

// Vanilla lists the built-in recording groups.
func (c *Client) Vanilla(ctx context.Context) ([]core.VanillaGroup, error) {
	var groups []core.VanillaGroup
	_, err := c.do(ctx, http.MethodGet, "/vanilla", nil, "", &groups)
	return groups, err
}

// Saves returns the most recent save events, newest first.
func (c *Client) Saves(ctx context.Context, limit int) ([]core.SaveEvent, error) {
	var out []core.SaveEvent
	_, err := c.do(ctx, http.MethodGet, "/history/saves?limit="+strconv.Itoa(limit), nil, "", &out)
	return out, err
}

// Playbacks returns the most recent playback runs, newest first.
func (c *Client) Playbacks(ctx context.Context, limit int) ([]core.PlaybackRun, error) {
	var payloads []streaming.PlaybackRunPayload
	if _, err := c.do(ctx, http.MethodGet, "/history/playbacks?limit="+strconv.Itoa(limit), nil, "", &payloads); err != nil {
		return nil, err
	}
	runs := make([]core.PlaybackRun, len(payloads))
	for i, p := range payloads {
		runs[i] = *p.Run()
	}
	return runs, nil
}

// Import sends an XML frame document file to be stored under key.
func (c *Client) Import(ctx context.Context, filePath string, key core.RecordingKey, overwrite bool) (core.Recording, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return core.Recording{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Create multipart form
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Write form fields and file in goroutine
	go func() {
		_ = writer.WriteField("name", key.Name)
		_ = writer.WriteField("model", key.Model)
		_ = writer.WriteField("overwrite", strconv.FormatBool(overwrite))

		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(fmt.Errorf("failed to create form file: %w", err))
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(fmt.Errorf("failed to copy file: %w", err))
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	var rec core.Recording
	if _, err := c.do(ctx, http.MethodPost, "/recordings", pr, writer.FormDataContentType(), &rec); err != nil {
		pr.CloseWithError(err)
		return core.Recording{}, err
	}
	return rec, nil
}

func recordingPath(key core.RecordingKey) string {
	return "/recordings/" + url.PathEscape(key.Name) + "/" + url.PathEscape(key.Model)
}

// do sends a request and decodes the response into out. A *[]byte out
// receives the raw body. Error responses become *transport.RemoteError
// when the server sent a code.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.secret != "" {
		req.Header.Set(transport.SecretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var remote transport.RemoteError
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Code != "" {
			remote.Code, remote.Message = payload.Code, payload.Message
			return nil, &remote
		}
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	switch v := out.(type) {
	case nil:
	case *[]byte:
		*v = data
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}
