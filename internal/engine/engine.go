// Package engine ties capture, the recording store and playback together
// behind one context object with an explicit lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RecM/recm/internal/capture"
	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/playback"
	"github.com/RecM/recm/internal/scheduler"
	"github.com/RecM/recm/pkg/core"
)

// DefaultTickResolution is how often the scheduler looks for due tasks.
const DefaultTickResolution = 10 * time.Millisecond

// Host is everything the engine needs from the game.
type Host interface {
	capture.Host
	playback.Host
	PlayerPed() core.Handle
}

// Dependencies holds what an Engine needs. When Store also implements
// playback.RunRecorder, finished playback runs are handed to it.
type Dependencies struct {
	Host   Host
	Store  Store
	Clock  clock.Clock
	Logger *slog.Logger
}

// Config tunes the engine.
type Config struct {
	CaptureInterval time.Duration
	TickResolution  time.Duration
	Playback        playback.Config
	Manager         playback.ManagerConfig
	// ManualStep leaves stepping the scheduler to the caller.
	ManualStep bool
}

// Engine is the capture and playback context for one local player.
type Engine struct {
	deps Dependencies
	cfg  Config

	scheduler  *scheduler.Scheduler
	sampler    *capture.Sampler
	manager    *playback.Manager
	controller *playback.Controller

	// saving serialises SaveCapture so one buffer is never stored twice.
	saving sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires an engine. Nothing runs until Init.
func New(deps Dependencies, cfg Config) (*Engine, error) {
	if deps.Host == nil || deps.Store == nil {
		return nil, fmt.Errorf("engine: host and store are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.TickResolution <= 0 {
		cfg.TickResolution = DefaultTickResolution
	}

	sched := scheduler.New(deps.Clock, cfg.TickResolution, deps.Logger.With("component", "scheduler"))

	sampler, err := capture.NewSampler(capture.Dependencies{
		Host:      deps.Host,
		Clock:     deps.Clock,
		Scheduler: sched,
		Logger:    deps.Logger.With("component", "capture"),
		Interval:  cfg.CaptureInterval,
	})
	if err != nil {
		return nil, err
	}

	recorder, _ := deps.Store.(playback.RunRecorder)
	manager, err := playback.NewManager(playback.ManagerDependencies{
		Host:     deps.Host,
		Clock:    deps.Clock,
		Logger:   deps.Logger.With("component", "sessions"),
		Recorder: recorder,
	}, cfg.Manager)
	if err != nil {
		return nil, err
	}

	controller := playback.NewController(playback.ControllerDependencies{
		Host:      deps.Host,
		Manager:   manager,
		Clock:     deps.Clock,
		Scheduler: sched,
		Logger:    deps.Logger.With("component", "playback"),
	}, cfg.Playback)

	return &Engine{
		deps:       deps,
		cfg:        cfg,
		scheduler:  sched,
		sampler:    sampler,
		manager:    manager,
		controller: controller,
	}, nil
}

// Init starts the scheduler goroutine unless ManualStep is set.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return fmt.Errorf("engine already initialized")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	if e.cfg.ManualStep {
		close(done)
		return nil
	}
	go func() {
		defer close(done)
		e.scheduler.Run(runCtx)
	}()
	return nil
}

// Shutdown stops every session, drops the capture buffer and stops the
// scheduler.
func (e *Engine) Shutdown(ctx context.Context) {
	e.controller.Shutdown(ctx)
	e.sampler.Discard()

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	e.deps.Logger.Info("Engine stopped")
}

// Step runs due scheduler tasks once. Meant for ManualStep engines.
func (e *Engine) Step() int {
	return e.scheduler.Step()
}

// Scheduler exposes the task scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.scheduler
}

// Store returns the recording store.
func (e *Engine) Store() Store {
	return e.deps.Store
}

// LogAttrs are the dynamic attributes added to every log record. It takes
// no engine locks, so it is safe to call from inside a log handler.
func (e *Engine) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int("sessions", e.manager.Active()),
		slog.Bool("capturing", e.sampler.Recording()),
	}
}

//////////////////////
// CAPTURE
//////////////////////

// StartCapture begins sampling the player's vehicle.
func (e *Engine) StartCapture() error {
	if _, ok := e.deps.Host.DrivenVehicle(); !ok {
		return capture.ErrNotCapturable
	}
	e.sampler.Start()
	return nil
}

// StopCapture pauses sampling, keeping the buffer.
func (e *Engine) StopCapture() {
	e.sampler.Stop()
}

// DiscardCapture stops sampling and forgets the buffer.
func (e *Engine) DiscardCapture() {
	e.sampler.Discard()
}

func (e *Engine) Capturing() bool {
	return e.sampler.Recording()
}

func (e *Engine) CapturedFrames() int {
	return e.sampler.Len()
}

// SaveCapture stores the capture buffer as name for the vehicle the player
// drives, together with its appearance and the player's. Spaces are dropped
// from name. The buffer is cleared once the store accepts it.
func (e *Engine) SaveCapture(ctx context.Context, name string, overwrite bool) (core.Recording, error) {
	e.saving.Lock()
	defer e.saving.Unlock()

	frames := e.sampler.Frames()
	if len(frames) == 0 {
		return core.Recording{}, core.ErrEmptyRecording
	}
	h := e.deps.Host
	v, ok := h.DrivenVehicle()
	if !ok {
		return core.Recording{}, capture.ErrNotCapturable
	}
	if e.sampler.Recording() {
		e.sampler.Stop()
	}

	key := core.RecordingKey{
		Name:  strings.ReplaceAll(name, " ", ""),
		Model: h.VehicleModel(v),
	}
	meta := capture.CaptureMetadata(h, h, v, h.PlayerPed())

	rec, err := e.deps.Store.Save(ctx, SaveRequest{Key: key, Frames: frames, Metadata: meta, Overwrite: overwrite})
	if err != nil {
		e.deps.Logger.Warn("Save failed", "recording", key.String(), "frames", len(frames), "error", err)
		return core.Recording{}, err
	}
	e.sampler.Reset()
	e.deps.Logger.Info("Recording saved", "recording", rec.Base(rec.Revision), "frames", len(frames))
	return rec, nil
}

//////////////////////
// CATALOG
//////////////////////

func (e *Engine) Recordings(ctx context.Context) ([]core.Listing, error) {
	return e.deps.Store.List(ctx)
}

func (e *Engine) Vanilla(ctx context.Context) ([]core.VanillaGroup, error) {
	return e.deps.Store.Vanilla(ctx)
}

func (e *Engine) DeleteRecording(ctx context.Context, key core.RecordingKey) (int, error) {
	n, err := e.deps.Store.Delete(ctx, key)
	if err != nil {
		return 0, err
	}
	e.deps.Logger.Info("Recording deleted", "recording", key.String(), "revisions", n)
	return n, nil
}

// OpenTools checks whether requester may open the recording tools.
func (e *Engine) OpenTools(ctx context.Context, requester string) error {
	ok, err := e.deps.Store.CanOpen(ctx, requester)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAllowed
	}
	return nil
}

//////////////////////
// PLAYBACK
//////////////////////

// PlayListing plays a stored recording, autonomously or from the player's seat.
func (e *Engine) PlayListing(ctx context.Context, requester string, l core.Listing, takeControl bool) (*playback.Session, error) {
	req := playback.ListingRequest(l, takeControl)
	req.Requester = requester
	return e.controller.Play(ctx, req)
}

// PlayVanilla plays a built-in recording.
func (e *Engine) PlayVanilla(ctx context.Context, requester, group string, id int, takeControl bool) (*playback.Session, error) {
	req := playback.VanillaRequest(group, id, takeControl)
	req.Requester = requester
	return e.controller.Play(ctx, req)
}

// StopPlayer cancels the player session and restores the player.
func (e *Engine) StopPlayer(ctx context.Context) error {
	return e.controller.StopPlayerPlayback(ctx, core.StopCancelled)
}

// StopSession cancels a session by id.
func (e *Engine) StopSession(ctx context.Context, id uuid.UUID) bool {
	for _, s := range e.controller.Sessions() {
		if s.ID == id {
			return e.controller.StopSession(ctx, s, core.StopCancelled)
		}
	}
	return false
}

func (e *Engine) SwitchSpeed(index int) int {
	return e.controller.SwitchSpeed(index)
}

func (e *Engine) SpeedIndex() int {
	return e.controller.SpeedIndex()
}

func (e *Engine) Speed() float32 {
	return e.controller.Speed()
}

func (e *Engine) SpeedName() string {
	return e.controller.SpeedName()
}

func (e *Engine) Sessions() []*playback.Session {
	return e.controller.Sessions()
}

func (e *Engine) PlayerSession() *playback.Session {
	return e.controller.PlayerSession()
}

// Progress returns the per-session lines computed on the last tick.
func (e *Engine) Progress() []string {
	return e.controller.Progress()
}

func (e *Engine) StatusText(s *playback.Session) string {
	return e.controller.StatusText(s)
}
