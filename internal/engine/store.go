package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/storage"
	"github.com/RecM/recm/pkg/core"
)

// ErrNotAllowed is returned when a requester may not open the recording tools.
var ErrNotAllowed = errors.New("you are not allowed to use the recording menu")

// SaveRequest carries a finished capture to the store.
type SaveRequest struct {
	Key       core.RecordingKey
	Frames    []core.Frame
	Metadata  *core.RecordingMetadata
	Overwrite bool
}

// Store persists recordings. LocalStore serves a catalog on this machine;
// the transport client serves one across a websocket.
type Store interface {
	Save(ctx context.Context, req SaveRequest) (core.Recording, error)
	// List returns the current revision of every group. It may return
	// listings together with an error describing unreadable files.
	List(ctx context.Context) ([]core.Listing, error)
	Vanilla(ctx context.Context) ([]core.VanillaGroup, error)
	Delete(ctx context.Context, key core.RecordingKey) (int, error)
	CanOpen(ctx context.Context, requester string) (bool, error)
}

// LocalStoreDependencies holds what a LocalStore needs. History is optional.
type LocalStoreDependencies struct {
	Catalog *catalog.Catalog
	History storage.Backend
	Clock   clock.Clock
	Logger  *slog.Logger
	// AllowOpen lists the requesters allowed to open the recording tools.
	// Empty allows everyone.
	AllowOpen []string
}

// LocalStore is a Store over a local catalog that writes history events.
type LocalStore struct {
	deps  LocalStoreDependencies
	allow map[string]bool
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(deps LocalStoreDependencies) *LocalStore {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if deps.History == nil {
		deps.History = storage.Discard{}
	}
	allow := make(map[string]bool, len(deps.AllowOpen))
	for _, id := range deps.AllowOpen {
		allow[id] = true
	}
	return &LocalStore{deps: deps, allow: allow}
}

// Catalog returns the underlying catalog.
func (s *LocalStore) Catalog() *catalog.Catalog {
	return s.deps.Catalog
}

// History returns the history backend.
func (s *LocalStore) History() storage.Backend {
	return s.deps.History
}

func (s *LocalStore) Save(_ context.Context, req SaveRequest) (core.Recording, error) {
	rec, err := s.deps.Catalog.Save(req.Key, req.Frames, req.Metadata, req.Overwrite)
	if err != nil {
		return core.Recording{}, err
	}
	event := &core.SaveEvent{
		Time:      s.deps.Clock.Now(),
		Name:      rec.Name,
		Model:     rec.Model,
		Revision:  rec.Revision,
		Frames:    len(req.Frames),
		Duration:  core.Duration(req.Frames),
		Overwrite: req.Overwrite,
		Metadata:  req.Metadata,
	}
	if err := s.deps.History.RecordSave(event); err != nil {
		s.deps.Logger.Warn("Failed to record save", "recording", rec.Base(rec.Revision), "error", err)
	}
	return rec, nil
}

func (s *LocalStore) List(context.Context) ([]core.Listing, error) {
	return s.deps.Catalog.List()
}

func (s *LocalStore) Vanilla(context.Context) ([]core.VanillaGroup, error) {
	return s.deps.Catalog.Vanilla()
}

func (s *LocalStore) Delete(_ context.Context, key core.RecordingKey) (int, error) {
	n, err := s.deps.Catalog.Delete(key)
	if err != nil {
		return 0, err
	}
	event := &core.DeleteEvent{Time: s.deps.Clock.Now(), Name: key.Name, Model: key.Model, Removed: n}
	if err := s.deps.History.RecordDelete(event); err != nil {
		s.deps.Logger.Warn("Failed to record delete", "recording", key.String(), "error", err)
	}
	return n, nil
}

func (s *LocalStore) CanOpen(_ context.Context, requester string) (bool, error) {
	return len(s.allow) == 0 || s.allow[requester], nil
}

// RecordPlayback forwards finished runs to the history backend.
func (s *LocalStore) RecordPlayback(run *core.PlaybackRun) error {
	return s.deps.History.RecordPlayback(run)
}
