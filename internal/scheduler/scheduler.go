// Package scheduler runs the engine's periodic work on one goroutine.
//
// Work is registered as named tasks. Each Step runs every due task in the
// order it was attached; a task may attach or detach tasks (itself
// included) while running.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RecM/recm/internal/clock"
)

// Task names used by the engine.
const (
	TaskCapture  = "capture"
	TaskPlayback = "playback"
	TaskRestore  = "restore"
)

type task struct {
	name  string
	every time.Duration
	next  time.Time
	fn    func()
}

// Scheduler owns the periodic task list.
type Scheduler struct {
	mu         sync.Mutex
	clock      clock.Clock
	resolution time.Duration
	tasks      []*task
	logger     *slog.Logger
}

// New creates a scheduler that wakes every resolution to look for due tasks.
func New(clk clock.Clock, resolution time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{clock: clk, resolution: resolution, logger: logger}
}

// Attach registers fn to run every interval, first on the next Step.
// Attaching a name that is already attached does nothing and returns false.
func (s *Scheduler) Attach(name string, every time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.name == name {
			return false
		}
	}
	s.tasks = append(s.tasks, &task{name: name, every: every, next: s.clock.Now(), fn: fn})
	s.logger.Debug("Task attached", "task", name, "every", every)
	return true
}

// Detach removes a task. It reports whether the task was attached.
func (s *Scheduler) Detach(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.name == name {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			s.logger.Debug("Task detached", "task", name)
			return true
		}
	}
	return false
}

// Has reports whether a task is attached.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.name == name {
			return true
		}
	}
	return false
}

// Tasks lists attached task names in run order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.name
	}
	return names
}

func (s *Scheduler) attached(t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.tasks {
		if cur == t {
			return true
		}
	}
	return false
}

// Step runs every due task once and returns how many ran.
func (s *Scheduler) Step() int {
	now := s.clock.Now()

	s.mu.Lock()
	snapshot := make([]*task, len(s.tasks))
	copy(snapshot, s.tasks)
	s.mu.Unlock()

	ran := 0
	for _, t := range snapshot {
		if now.Before(t.next) || !s.attached(t) {
			continue
		}
		s.mu.Lock()
		t.next = now.Add(t.every)
		s.mu.Unlock()
		s.run(t)
		ran++
	}
	return ran
}

func (s *Scheduler) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn()
}

// Run steps the scheduler until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", "resolution", s.resolution)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-s.clock.After(s.resolution):
			s.Step()
		}
	}
}
