package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RecM/recm/internal/capture"
	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/geo"
	"github.com/RecM/recm/internal/scheduler"
	"github.com/RecM/recm/pkg/core"
)

const (
	DefaultModelLoadTimeout = 10 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultDriverModel      = "s_m_y_airworker"
)

var (
	ErrModelUnavailable = errors.New("vehicle model unavailable")
	ErrSpawnFailed      = errors.New("host failed to create entity")
	ErrVehicleVanished  = errors.New("playback vehicle no longer exists")
)

// RunRecorder persists finished playback runs.
type RunRecorder interface {
	RecordPlayback(run *core.PlaybackRun) error
}

// ManagerConfig tunes entity creation.
type ManagerConfig struct {
	ModelLoadTimeout time.Duration
	PollInterval     time.Duration
	DriverModel      string
}

// ManagerDependencies holds what a Manager needs. Recorder is optional.
type ManagerDependencies struct {
	Host     Host
	Clock    clock.Clock
	Logger   *slog.Logger
	Recorder RunRecorder
}

// Manager is the registry of live sessions and owns their entities.
// It is not safe for concurrent use; Controller serialises access.
type Manager struct {
	deps    ManagerDependencies
	cfg     ManagerConfig
	metrics *metrics

	sessions []*Session
	active   atomic.Int32
}

// NewManager creates an empty registry.
func NewManager(deps ManagerDependencies, cfg ManagerConfig) (*Manager, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.ModelLoadTimeout <= 0 {
		cfg.ModelLoadTimeout = DefaultModelLoadTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DriverModel == "" {
		cfg.DriverModel = DefaultDriverModel
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Manager{deps: deps, cfg: cfg, metrics: m}, nil
}

func (m *Manager) loadModel(ctx context.Context, model uint32) bool {
	h := m.deps.Host
	if !h.ModelInCdimage(model) {
		return false
	}
	h.RequestModel(model)
	err := scheduler.WaitUntil(ctx, m.deps.Clock, m.cfg.PollInterval, m.cfg.ModelLoadTimeout, func() bool {
		return h.ModelLoaded(model)
	})
	return err == nil
}

// CreateVehicle loads model and spawns it at pose with playback-safe flags.
func (m *Manager) CreateVehicle(ctx context.Context, model string, pose core.Pose, networked bool) (core.Handle, error) {
	if model == "" {
		return 0, ErrModelUnavailable
	}
	hash := core.ModelHash(model)
	if !m.loadModel(ctx, hash) {
		return 0, fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	}
	h := m.deps.Host
	defer h.ReleaseModel(hash)

	v := h.SpawnVehicle(hash, pose, networked)
	if v == 0 {
		return 0, fmt.Errorf("%w: vehicle %s", ErrSpawnFailed, model)
	}
	h.SetInvincible(v, true)
	h.SetVisiblyDamageable(v, false)
	h.SetEngineRunning(v, true)
	h.SetRadioOff(v)
	return v, nil
}

// CreateDummyDriver seats a passive driver in v. The driver uses the
// recorded ped model and clothing when given, otherwise the configured
// default model.
func (m *Manager) CreateDummyDriver(ctx context.Context, v core.Handle, ped *core.PedMetadata) (core.Handle, error) {
	h := m.deps.Host
	if v == 0 || !h.Exists(v) {
		return 0, ErrVehicleVanished
	}

	model := core.ModelHash(m.cfg.DriverModel)
	dressed := false
	if ped != nil && ped.Model != 0 {
		if m.loadModel(ctx, ped.Model) {
			model, dressed = ped.Model, true
		} else {
			m.deps.Logger.Warn("Recorded driver model unavailable, using default", "model", ped.Model)
		}
	}
	if !dressed && !m.loadModel(ctx, model) {
		return 0, fmt.Errorf("%w: driver %s", ErrModelUnavailable, m.cfg.DriverModel)
	}
	defer h.ReleaseModel(model)

	p := h.SpawnPed(model, h.EntityPose(v))
	if p == 0 {
		return 0, fmt.Errorf("%w: driver", ErrSpawnFailed)
	}
	h.ClearTasks(p)
	h.SetInvincible(p, true)
	h.SetCanWrithe(p, false)
	h.SetIntoDriverSeat(p, v)
	h.SetBlockPermanentEvents(p, true)
	if dressed {
		capture.ApplyPed(h, p, ped)
	}
	return p, nil
}

// CreatePlayerVehicle spawns model under the player and seats them as driver.
func (m *Manager) CreatePlayerVehicle(ctx context.Context, model string) (core.Handle, error) {
	if model == "" {
		return 0, ErrModelUnavailable
	}
	hash := core.ModelHash(model)
	if !m.loadModel(ctx, hash) {
		return 0, fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	}
	return m.spawnPlayerVehicle(hash, model)
}

// PollPlayerVehicle is CreatePlayerVehicle for the tick loop: it never
// waits. Until the model is loaded it requests it and returns done false.
// Loading that has not finished ModelLoadTimeout after since fails.
func (m *Manager) PollPlayerVehicle(model string, since time.Time) (v core.Handle, done bool, err error) {
	h := m.deps.Host
	hash := core.ModelHash(model)
	if model == "" || !h.ModelInCdimage(hash) {
		return 0, true, fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	}
	if !h.ModelLoaded(hash) {
		if m.deps.Clock.Since(since) >= m.cfg.ModelLoadTimeout {
			h.ReleaseModel(hash)
			return 0, true, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, model, scheduler.ErrTimeout)
		}
		h.RequestModel(hash)
		return 0, false, nil
	}
	v, err = m.spawnPlayerVehicle(hash, model)
	return v, true, err
}

func (m *Manager) spawnPlayerVehicle(hash uint32, model string) (core.Handle, error) {
	h := m.deps.Host
	defer h.ReleaseModel(hash)

	v := h.SpawnVehicle(hash, h.PlayerPose(), false)
	if v == 0 {
		return 0, fmt.Errorf("%w: vehicle %s", ErrSpawnFailed, model)
	}
	h.SetPlayerIntoVehicle(v)
	return v, nil
}

// Discard deletes entities that never made it into a session, or that a
// session no longer references. Handles still owned by a registered session
// are left alone.
func (m *Manager) Discard(handles ...core.Handle) {
	h := m.deps.Host
	for _, e := range handles {
		if e == 0 || m.owned(e) || !h.Exists(e) {
			continue
		}
		h.Delete(e)
	}
}

func (m *Manager) owned(e core.Handle) bool {
	for _, s := range m.sessions {
		if s.Vehicle == e || s.DummyDriver == e {
			return true
		}
	}
	return false
}

// Add registers s. It reports false when s is already registered.
func (m *Manager) Add(s *Session) bool {
	for _, cur := range m.sessions {
		if cur == s {
			return false
		}
	}
	m.sessions = append(m.sessions, s)
	m.active.Store(int32(len(m.sessions)))
	m.metrics.sessionStarted(s)
	return true
}

func (m *Manager) Get(id uuid.UUID) *Session {
	for _, s := range m.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// PlayerSession returns the player-controlled session, or nil.
func (m *Manager) PlayerSession() *Session {
	for _, s := range m.sessions {
		if s.PlayerControlled {
			return s
		}
	}
	return nil
}

// Active is the registered session count. Unlike the other methods it is
// safe to call from any goroutine.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

func (m *Manager) HasSessions() bool {
	return len(m.sessions) > 0
}

// Sessions returns the registered sessions in registration order.
func (m *Manager) Sessions() []*Session {
	out := make([]*Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Stop tears a session down and unregisters it. It is the only place
// registered session entities are deleted. Stopping an unknown id returns
// false.
func (m *Manager) Stop(id uuid.UUID, reason core.StopReason) bool {
	idx := -1
	for i, s := range m.sessions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s := m.sessions[idx]
	h := m.deps.Host

	if s.Vehicle != 0 && h.Exists(s.Vehicle) && h.PlaybackActive(s.Vehicle) {
		h.StopPlayback(s.Vehicle)
	}
	h.RemoveRecording(s.RecordingID, s.RecordingName)
	if s.DummyDriver != 0 && h.Exists(s.DummyDriver) {
		h.Delete(s.DummyDriver)
	}
	if !s.PlayerControlled && s.Vehicle != 0 && h.Exists(s.Vehicle) {
		h.Delete(s.Vehicle)
	}
	s.DummyDriver = 0
	s.Vehicle = 0

	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)
	m.active.Store(int32(len(m.sessions)))
	m.metrics.sessionStopped(s, reason)
	m.deps.Logger.Info("Playback session stopped",
		"session", s.ID, "recording", s.DisplayName, "player", s.PlayerControlled, "reason", reason)
	m.record(s, reason)
	return true
}

func (m *Manager) record(s *Session, reason core.StopReason) {
	if m.deps.Recorder == nil {
		return
	}
	length, wkt, err := geo.Summary(s.Trail)
	if err != nil {
		m.deps.Logger.Warn("Failed to build playback trail", "session", s.ID, "error", err)
	}
	run := &core.PlaybackRun{
		SessionID:        s.ID.String(),
		RecordingID:      s.RecordingID,
		RecordingName:    s.RecordingName,
		DisplayName:      s.DisplayName,
		Model:            s.VehicleModel,
		PlayerControlled: s.PlayerControlled,
		Reason:           reason,
		StartedAt:        s.StartedAt,
		StoppedAt:        m.deps.Clock.Now(),
		Duration:         s.Duration,
		TrailLength:      length,
		Trail:            wkt,
	}
	if err := m.deps.Recorder.RecordPlayback(run); err != nil {
		m.deps.Logger.Warn("Failed to record playback run", "session", s.ID, "error", err)
	}
}

// StopAll tears down every session.
func (m *Manager) StopAll(reason core.StopReason) int {
	n := 0
	for _, s := range m.Sessions() {
		if m.Stop(s.ID, reason) {
			n++
		}
	}
	return n
}

// StatusText reports native progress as "mm:ss / mm:ss".
func (m *Manager) StatusText(s *Session) string {
	if s == nil || s.Vehicle == 0 || !m.deps.Host.Exists(s.Vehicle) {
		return "Vehicle not available"
	}
	return formatClock(m.deps.Host.PlaybackPosition(s.Vehicle)) + " / " + formatClock(s.Duration)
}

// formatClock renders the minutes and seconds components of d, ignoring sign.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", (total/60)%60, total%60)
}
