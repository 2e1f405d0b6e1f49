package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/RecM/recm/internal/capture"
	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/scheduler"
	"github.com/RecM/recm/pkg/core"
)

const (
	DefaultLoadTimeout      = 7 * time.Second
	DefaultLoadPollInterval = time.Second
	DefaultCooldown         = time.Second
	DefaultTrailInterval    = 120 * time.Millisecond
	DefaultVehicleModel     = "dubsta2"
)

var (
	ErrLoadTimeout     = errors.New("recording failed to load")
	ErrCooldownActive  = errors.New("just a 1 second cooldown, please wait")
	ErrNoPlayerSession = errors.New("there's no recording being played at this moment")
	ErrPlaybackFailed  = errors.New("playback failed")
)

// Config tunes the controller. Zero values take the defaults above.
type Config struct {
	LoadTimeout      time.Duration
	LoadPollInterval time.Duration
	Cooldown         time.Duration
	TrailInterval    time.Duration
	DefaultModel     string
}

// ControllerDependencies holds what a Controller needs.
type ControllerDependencies struct {
	Host      Host
	Manager   *Manager
	Clock     clock.Clock
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
}

// PlayRequest describes one play action.
type PlayRequest struct {
	// Requester scopes the cooldown.
	Requester     string
	RecordingID   int
	RecordingName string
	// Model is the vehicle the recording was made with; empty for vanilla
	// recordings.
	Model    string
	Position *core.Pose
	// TakeControl plays from the player's seat; otherwise an autonomous
	// vehicle is spawned.
	TakeControl bool
	SpawnDriver bool
	DisplayName string
	Metadata    *core.RecordingMetadata
}

// ListingRequest plays a stored recording.
func ListingRequest(l core.Listing, takeControl bool) PlayRequest {
	pos := l.StartPosition
	return PlayRequest{
		RecordingID:   l.Revision,
		RecordingName: l.PlaybackName(),
		Model:         l.Model,
		Position:      &pos,
		TakeControl:   takeControl,
		SpawnDriver:   !takeControl,
		DisplayName:   l.Name,
		Metadata:      l.Metadata,
	}
}

// VanillaRequest plays a built-in recording.
func VanillaRequest(group string, id int, takeControl bool) PlayRequest {
	return PlayRequest{
		RecordingID:   id,
		RecordingName: group,
		TakeControl:   takeControl,
		SpawnDriver:   !takeControl,
		DisplayName:   fmt.Sprintf("%s%03d", group, id),
	}
}

type restoreState struct {
	model    string
	location *core.Pose
}

type restoreJob struct {
	vehicle core.Handle
	restoreState
	queued time.Time
}

// Controller drives sessions from play request to terminal stop. All
// registry, speed, cooldown and restore state is guarded by mu, which is
// never held across a bounded wait.
type Controller struct {
	deps ControllerDependencies
	cfg  Config

	mu         sync.Mutex
	speedIndex int
	cooldowns  map[string]time.Time
	loading    int
	restore    restoreState
	progress   []string
	// restores queued by Tick, oldest first
	restores []restoreJob
}

// NewController creates a controller at 1x speed.
func NewController(deps ControllerDependencies, cfg Config) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.LoadPollInterval <= 0 {
		cfg.LoadPollInterval = DefaultLoadPollInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.TrailInterval <= 0 {
		cfg.TrailInterval = DefaultTrailInterval
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultVehicleModel
	}
	return &Controller{
		deps:       deps,
		cfg:        cfg,
		speedIndex: DefaultSpeedIndex,
		cooldowns:  make(map[string]time.Time),
	}
}

func (c *Controller) locked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func (c *Controller) attachTick() {
	if c.deps.Scheduler != nil {
		c.deps.Scheduler.Attach(scheduler.TaskPlayback, 0, c.Tick)
	}
}

func (c *Controller) detachTick() {
	if c.deps.Scheduler != nil {
		c.deps.Scheduler.Detach(scheduler.TaskPlayback)
	}
}

func (c *Controller) startCooldown(requester string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.deps.Clock.Now()
	for r, until := range c.cooldowns {
		if !now.Before(until) {
			delete(c.cooldowns, r)
		}
	}
	if _, ok := c.cooldowns[requester]; ok {
		return ErrCooldownActive
	}
	c.cooldowns[requester] = now.Add(c.cfg.Cooldown)
	c.loading++
	return nil
}

// Loading reports whether a play request is between cooldown and registration.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading > 0
}

// Play loads a recording and starts a session for it. Failures never leave
// a half-built session registered.
func (c *Controller) Play(ctx context.Context, req PlayRequest) (s *Session, err error) {
	if err := c.startCooldown(req.Requester); err != nil {
		return nil, err
	}
	defer c.locked(func() { c.loading-- })

	var spawned core.Handle
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.deps.Logger.Error("Playback failed", "recording", req.RecordingName, "panic", r)
		c.locked(func() {
			if s != nil && c.deps.Manager.Get(s.ID) != nil {
				c.deps.Manager.Stop(s.ID, core.StopCancelled)
			} else {
				c.deps.Manager.Discard(spawned)
				if s != nil {
					c.deps.Manager.Discard(s.DummyDriver)
				}
			}
			c.clean()
		})
		s, err = nil, fmt.Errorf("%w: %v", ErrPlaybackFailed, r)
	}()

	h := c.deps.Host
	switching := false
	var veh core.Handle
	var ownModel string

	if req.TakeControl {
		backup, inVehicle := h.PlayerVehicle()
		if inVehicle {
			if h.PlaybackActive(backup) {
				switching = true
			} else {
				ownModel = h.VehicleModel(backup)
			}
		}
		switch {
		case req.Model == "" && inVehicle:
			veh = backup
		case req.Model == "":
			veh, err = c.deps.Manager.CreatePlayerVehicle(ctx, c.cfg.DefaultModel)
		case h.ModelInCdimage(core.ModelHash(req.Model)):
			if inVehicle && h.VehicleModel(backup) == strings.ToLower(req.Model) {
				veh = backup
			} else {
				veh, err = c.deps.Manager.CreatePlayerVehicle(ctx, req.Model)
			}
		case inVehicle:
			c.deps.Logger.Warn("Recording model unavailable, using current vehicle", "model", req.Model)
			veh = backup
		default:
			c.deps.Logger.Warn("Recording model unavailable, using default vehicle", "model", req.Model, "default", c.cfg.DefaultModel)
			veh, err = c.deps.Manager.CreatePlayerVehicle(ctx, c.cfg.DefaultModel)
		}
	} else {
		model := req.Model
		if model != "" && !h.ModelInCdimage(core.ModelHash(model)) {
			c.deps.Logger.Warn("Recording model unavailable, using default vehicle", "model", model, "default", c.cfg.DefaultModel)
			model = ""
		}
		if model == "" {
			model = c.cfg.DefaultModel
		}
		pose := h.PlayerPose()
		if req.Position != nil {
			pose = *req.Position
		}
		veh, err = c.deps.Manager.CreateVehicle(ctx, model, pose, true)
		spawned = veh
	}
	if err != nil {
		return nil, fmt.Errorf("vehicle failed to spawn for the recording: %w", err)
	}

	if switching {
		c.locked(func() {
			if ps := c.deps.Manager.PlayerSession(); ps != nil {
				c.deps.Manager.Stop(ps.ID, core.StopSwitching)
			}
		})
	}

	c.locked(c.attachTick)

	if req.Metadata != nil {
		capture.ApplyVehicle(h, veh, req.Metadata.Vehicle)
	}

	h.RequestRecording(req.RecordingID, req.RecordingName)
	err = scheduler.WaitUntil(ctx, c.deps.Clock, c.cfg.LoadPollInterval, c.cfg.LoadTimeout, func() bool {
		return h.RecordingLoaded(req.RecordingID, req.RecordingName)
	})
	if err != nil {
		c.locked(func() {
			c.deps.Manager.Discard(spawned)
			if !c.deps.Manager.HasSessions() {
				c.detachTick()
			}
		})
		if errors.Is(err, scheduler.ErrTimeout) {
			err = fmt.Errorf("%w: %s", ErrLoadTimeout, req.RecordingName)
		}
		c.deps.Logger.Warn("Recording failed to load", "recording", req.RecordingName, "id", req.RecordingID, "error", err)
		return nil, err
	}

	if req.TakeControl && !switching {
		pose := h.EntityPose(veh)
		c.locked(func() { c.restore = restoreState{model: ownModel, location: &pose} })
	}
	if req.TakeControl && req.Position != nil {
		h.TeleportPlayer(*req.Position)
	}

	h.StartPlayback(veh, req.RecordingID, req.RecordingName)

	s = NewSession(req.RecordingID, req.RecordingName, req.TakeControl, req.Model, req.Position, req.DisplayName)
	s.Vehicle = veh
	now := c.deps.Clock.Now()
	s.StartReference = now
	s.StartedAt = now
	s.Duration = h.RecordingDuration(req.RecordingID, req.RecordingName)
	s.Trail = c.sampleTrail(req.RecordingID, req.RecordingName, s.Duration)

	if !req.TakeControl && req.SpawnDriver {
		var ped *core.PedMetadata
		if req.Metadata != nil {
			ped = req.Metadata.Driver
		}
		d, derr := c.deps.Manager.CreateDummyDriver(ctx, veh, ped)
		if derr != nil {
			c.deps.Logger.Warn("Dummy driver not created", "session", s.ID, "error", derr)
		} else {
			s.DummyDriver = d
		}
	}

	c.locked(func() {
		if s.PlayerControlled {
			if ps := c.deps.Manager.PlayerSession(); ps != nil {
				c.deps.Manager.Stop(ps.ID, core.StopSwitching)
			}
		}
		c.deps.Manager.Add(s)
		c.attachTick()
		if s.PlayerControlled {
			c.applySpeed()
		}
	})

	c.deps.Logger.Info("Playback started",
		"session", s.ID, "recording", s.DisplayName, "player", s.PlayerControlled,
		"duration", s.Duration, "trail", len(s.Trail), "switching", switching)
	return s, nil
}

func (c *Controller) sampleTrail(id int, name string, duration time.Duration) []core.Vector3 {
	trail := make([]core.Vector3, 0, int(duration/c.cfg.TrailInterval)+1)
	for at := time.Duration(0); at <= duration; at += c.cfg.TrailInterval {
		trail = append(trail, c.deps.Host.PositionAt(id, name, at))
	}
	return trail
}

// clean forgets restore state once no player playback is running.
func (c *Controller) clean() {
	s := c.deps.Manager.PlayerSession()
	if s == nil || s.Vehicle == 0 || !c.deps.Host.Exists(s.Vehicle) || !c.deps.Host.PlaybackActive(s.Vehicle) {
		c.restore = restoreState{}
	}
}

// Tick evaluates every session once, in registration order. Returning the
// player after a stop runs as its own scheduler task so Tick never waits.
func (c *Controller) Tick() {
	job := c.evaluate()
	if job == nil {
		return
	}
	if c.deps.Scheduler == nil {
		c.restoreWorld(context.Background(), *job)
		return
	}
	job.queued = c.deps.Clock.Now()
	c.locked(func() {
		c.restores = append(c.restores, *job)
		c.deps.Scheduler.Attach(scheduler.TaskRestore, c.deps.Manager.cfg.PollInterval, c.restoreTick)
	})
}

// Restoring reports whether a player restoration is still queued.
func (c *Controller) Restoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.restores) > 0
}

// restoreTick advances the oldest queued restoration by one step.
func (c *Controller) restoreTick() {
	var (
		job     restoreJob
		pending bool
	)
	c.locked(func() {
		// a new player session owns the player now
		if c.deps.Manager.PlayerSession() != nil {
			c.restores = nil
		}
		if len(c.restores) == 0 {
			c.deps.Scheduler.Detach(scheduler.TaskRestore)
			return
		}
		job, pending = c.restores[0], true
	})
	if !pending || !c.restoreStep(job) {
		return
	}
	c.locked(func() {
		// Shutdown may have drained the queue meanwhile
		if len(c.restores) > 0 {
			c.restores = c.restores[1:]
		}
		if len(c.restores) == 0 {
			c.deps.Scheduler.Detach(scheduler.TaskRestore)
		}
	})
}

// restoreStep reports false while the previous vehicle's model is loading.
func (c *Controller) restoreStep(job restoreJob) bool {
	if c.needsRespawn(job) {
		_, done, err := c.deps.Manager.PollPlayerVehicle(job.model, job.queued)
		if !done {
			return false
		}
		c.respawned(job, err)
	}
	c.returnPlayer(job)
	return true
}

func (c *Controller) evaluate() *restoreJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.deps.Host
	var job *restoreJob
	sessions := c.deps.Manager.Sessions()
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		// Stopped earlier in this tick.
		if c.deps.Manager.Get(s.ID) == nil {
			continue
		}
		v := s.Vehicle
		if v == 0 || !h.Exists(v) {
			c.deps.Logger.Warn("Stopping playback", "session", s.ID, "error", ErrVehicleVanished)
			if j := c.stopSession(s, core.StopCancelled); j != nil {
				job = j
			}
			continue
		}
		if !h.PlaybackActive(v) {
			if j := c.stopSession(s, core.StopCompleted); j != nil {
				job = j
			}
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", s.Kind(), s.DisplayName, c.progressText(s)))
		if s.PlayerControlled {
			if pv, ok := h.PlayerVehicle(); ok && pv == v {
				h.SetPlayerControl(false)
			}
		}
	}
	c.progress = lines
	if !c.deps.Manager.HasSessions() {
		c.detachTick()
	}
	return job
}

func (c *Controller) stopSession(s *Session, reason core.StopReason) *restoreJob {
	if !s.PlayerControlled {
		c.deps.Manager.Stop(s.ID, reason)
		return nil
	}
	job, _ := c.stopPlayer(reason)
	return job
}

// stopPlayer stops the player session. Unless switching, it hands back the
// restoration the caller must run once mu is released.
func (c *Controller) stopPlayer(reason core.StopReason) (*restoreJob, error) {
	s := c.deps.Manager.PlayerSession()
	if s == nil {
		return nil, ErrNoPlayerSession
	}
	v := s.Vehicle
	c.deps.Manager.Stop(s.ID, reason)
	if reason == core.StopSwitching {
		return nil, nil
	}
	job := &restoreJob{vehicle: v, restoreState: c.restore}
	c.restore = restoreState{}
	if !c.deps.Manager.HasSessions() {
		c.detachTick()
	}
	return job, nil
}

// restoreWorld returns the player right away, waiting for the previous
// vehicle's model if it has to be respawned.
func (c *Controller) restoreWorld(ctx context.Context, job restoreJob) {
	if c.needsRespawn(job) {
		_, err := c.deps.Manager.CreatePlayerVehicle(ctx, job.model)
		c.respawned(job, err)
	}
	c.returnPlayer(job)
}

// needsRespawn reports whether the player left in a vehicle of another
// model than the one they drove before.
func (c *Controller) needsRespawn(job restoreJob) bool {
	h := c.deps.Host
	return job.vehicle != 0 && h.Exists(job.vehicle) && job.model != "" && job.model != h.VehicleModel(job.vehicle)
}

func (c *Controller) respawned(job restoreJob, err error) {
	if err != nil {
		c.deps.Logger.Warn("Could not respawn previous vehicle", "model", job.model, "error", err)
		return
	}
	c.locked(func() { c.deps.Manager.Discard(job.vehicle) })
}

func (c *Controller) returnPlayer(job restoreJob) {
	h := c.deps.Host
	if job.location != nil {
		h.TeleportPlayer(*job.location)
	}
	h.SetPlayerControl(true)
	c.deps.Logger.Info("Recording stopped")
}

// StopPlayerPlayback stops the player session and, unless switching,
// returns the player to where and what they drove before.
func (c *Controller) StopPlayerPlayback(ctx context.Context, reason core.StopReason) error {
	var (
		job *restoreJob
		err error
	)
	c.locked(func() { job, err = c.stopPlayer(reason) })
	if err != nil {
		return err
	}
	if job != nil {
		c.restoreWorld(ctx, *job)
	}
	return nil
}

// StopSession stops any session by id; player sessions restore the player.
func (c *Controller) StopSession(ctx context.Context, s *Session, reason core.StopReason) bool {
	if s == nil {
		return false
	}
	if s.PlayerControlled {
		return c.StopPlayerPlayback(ctx, reason) == nil
	}
	var ok bool
	c.locked(func() {
		ok = c.deps.Manager.Stop(s.ID, reason)
		if !c.deps.Manager.HasSessions() {
			c.detachTick()
		}
	})
	return ok
}

func (c *Controller) progressText(s *Session) string {
	h := c.deps.Host
	total := formatClock(s.Duration)
	if !s.PlayerControlled {
		pos := h.PlaybackPosition(s.Vehicle)
		if pos < 0 {
			pos = 0
		}
		return formatClock(pos) + " / " + total
	}
	speed := Speeds[c.speedIndex]
	if speed == 0 {
		return "Paused"
	}
	ahead := s.StartReference.Sub(c.deps.Clock.Now())
	current := formatClock(time.Duration(float64(ahead) * float64(speed)))
	if speed < 0 && ahead <= 0 {
		current = "00:00"
	}
	return current + " / " + total
}

// Progress returns the per-session progress lines from the last tick.
func (c *Controller) Progress() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.progress))
	copy(out, c.progress)
	return out
}

// SwitchSpeed moves to a speed table index, clamped into range, and applies
// it to the player session.
func (c *Controller) SwitchSpeed(index int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speedIndex = ClampSpeedIndex(index)
	c.applySpeed()
	return c.speedIndex
}

// applySpeed re-derives the start reference so progress stays continuous.
func (c *Controller) applySpeed() {
	s := c.deps.Manager.PlayerSession()
	h := c.deps.Host
	if s == nil || s.Vehicle == 0 || !h.Exists(s.Vehicle) {
		return
	}
	speed := Speeds[c.speedIndex]
	h.SetPlaybackSpeed(s.Vehicle, speed)
	divisor := float64(speed)
	if divisor == 0 {
		divisor = 1
	}
	pos := time.Duration(float64(h.PlaybackPosition(s.Vehicle)) / divisor)
	s.StartReference = c.deps.Clock.Now().Add(-pos)
}

func (c *Controller) SpeedIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speedIndex
}

func (c *Controller) Speed() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Speeds[c.speedIndex]
}

func (c *Controller) SpeedName() string {
	return SpeedName(c.Speed())
}

// Sessions snapshots the registry.
func (c *Controller) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deps.Manager.Sessions()
}

// PlayerSession returns the player-controlled session, or nil.
func (c *Controller) PlayerSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deps.Manager.PlayerSession()
}

// StatusText is the manager's native progress text for s.
func (c *Controller) StatusText(s *Session) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deps.Manager.StatusText(s)
}

// Shutdown stops every session, restoring the player if they were in one.
func (c *Controller) Shutdown(ctx context.Context) {
	_ = c.StopPlayerPlayback(ctx, core.StopCancelled)
	var pending []restoreJob
	c.locked(func() {
		c.deps.Manager.StopAll(core.StopCancelled)
		c.detachTick()
		c.progress = nil
		pending, c.restores = c.restores, nil
		if c.deps.Scheduler != nil {
			c.deps.Scheduler.Detach(scheduler.TaskRestore)
		}
	})
	for _, job := range pending {
		c.restoreWorld(ctx, job)
	}
}
