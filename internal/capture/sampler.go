// Package capture samples the player's vehicle into a frame buffer and
// snapshots or re-applies vehicle and driver cosmetics.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/queue"
	"github.com/RecM/recm/internal/scheduler"
	"github.com/RecM/recm/pkg/core"
)

const instrumentationName = "github.com/RecM/recm/internal/capture"

// DefaultInterval is the capture sampling period.
const DefaultInterval = 100 * time.Millisecond

// reverseThreshold is the local forward speed below which the brake control
// counts as reverse throttle.
const reverseThreshold = -1

var (
	ErrNotCapturable = errors.New("player is not driving a vehicle")
	ErrNotRecording  = errors.New("capture is not running")
)

// Control identifies an analogue player input.
type Control int

const (
	ControlAccelerate Control = iota
	ControlBrake
)

// Host is the game surface the sampler reads.
type Host interface {
	// DrivenVehicle returns the vehicle the local player drives. ok is false
	// unless the player sits in the driver seat of an existing vehicle.
	DrivenVehicle() (v core.Handle, ok bool)
	EntityMatrix(v core.Handle) (forward, right, position core.Vector3)
	Velocity(v core.Handle) core.Vector3
	// LocalSpeed is the velocity relative to the vehicle's own axes.
	LocalSpeed(v core.Handle) core.Vector3
	SteeringAngle(v core.Handle) float32 // degrees
	Handbrake(v core.Handle) bool
	ControlNormal(c Control) float32
}

// Dependencies holds what a Sampler needs.
type Dependencies struct {
	Host      Host
	Clock     clock.Clock
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
	Interval  time.Duration
}

// Sampler turns the player's vehicle state into frames while capture is on.
type Sampler struct {
	deps Dependencies

	mu        sync.Mutex
	recording bool
	origin    time.Time
	hasOrigin bool

	buffer   *queue.Queue[core.Frame]
	captured metric.Int64Counter
}

// NewSampler creates an idle sampler.
func NewSampler(deps Dependencies) (*Sampler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	captured, err := otel.Meter(instrumentationName).Int64Counter(
		"capture.frames",
		metric.WithDescription("Frames captured"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	return &Sampler{deps: deps, buffer: queue.New[core.Frame](), captured: captured}, nil
}

// Start turns capture on and attaches the sampling task. Frames already in
// the buffer are kept, so a stopped capture can be resumed.
func (s *Sampler) Start() {
	s.mu.Lock()
	s.recording = true
	s.mu.Unlock()
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Attach(scheduler.TaskCapture, s.deps.Interval, s.tick)
	}
	s.deps.Logger.Info("Capture started")
}

// Stop turns capture off; the buffer is kept for saving.
func (s *Sampler) Stop() {
	s.mu.Lock()
	s.recording = false
	s.mu.Unlock()
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Detach(scheduler.TaskCapture)
	}
	s.deps.Logger.Info("Capture stopped", "frames", s.buffer.Len())
}

// Discard stops capture and forgets every frame and the time origin.
func (s *Sampler) Discard() {
	s.Stop()
	s.Reset()
}

// Reset clears the buffer and time origin without touching the capture flag.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Clear()
	s.hasOrigin = false
	s.origin = time.Time{}
}

// Recording reports whether capture is on.
func (s *Sampler) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Frames returns a copy of the buffered frames.
func (s *Sampler) Frames() []core.Frame {
	return s.buffer.Snapshot()
}

// Len returns the number of buffered frames.
func (s *Sampler) Len() int {
	return s.buffer.Len()
}

// Sample reads one frame and appends it to the buffer.
// The first successful sample fixes the time origin.
func (s *Sampler) Sample() (core.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return core.Frame{}, ErrNotRecording
	}

	h := s.deps.Host
	v, ok := h.DrivenVehicle()
	if !ok {
		return core.Frame{}, ErrNotCapturable
	}

	now := s.deps.Clock.Now()
	if !s.hasOrigin {
		s.origin = now
		s.hasOrigin = true
	}

	forward, right, pos := h.EntityMatrix(v)
	accel := h.ControlNormal(ControlAccelerate)
	brake := h.ControlNormal(ControlBrake)
	gas := accel
	if h.LocalSpeed(v).Y < reverseThreshold {
		gas = accel - brake
	}

	f := core.Frame{
		Time:          uint32(now.Sub(s.origin).Milliseconds()),
		Position:      pos,
		Velocity:      h.Velocity(v),
		Forward:       forward,
		Right:         right,
		SteeringAngle: float32(float64(h.SteeringAngle(v)) * math.Pi / 180),
		Gas:           gas,
		Brake:         brake,
		Handbrake:     h.Handbrake(v),
	}
	s.buffer.Push(f)
	s.captured.Add(context.Background(), 1)
	return f, nil
}

func (s *Sampler) tick() {
	if _, err := s.Sample(); err != nil && !errors.Is(err, ErrNotCapturable) && !errors.Is(err, ErrNotRecording) {
		s.deps.Logger.Warn("Capture sample failed", "error", err)
	}
}
