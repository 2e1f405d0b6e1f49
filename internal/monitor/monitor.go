// Package monitor periodically snapshots server status to a file and the log.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/RecM/recm/internal/engine"
)

// DefaultInterval is how often status is refreshed.
const DefaultInterval = 30 * time.Second

// PeerCounter reports connected clients.
type PeerCounter interface {
	Peers() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Store   engine.Store
	Peers   PeerCounter
	Logger  *slog.Logger
	Started time.Time
	// StatusPath is rewritten on every refresh; empty disables the file.
	StatusPath string
	Interval   time.Duration
}

// Status is one snapshot of the server.
type Status struct {
	Time         time.Time `json:"time"`
	Uptime       string    `json:"uptime"`
	Clients      int       `json:"clients"`
	Recordings   int       `json:"recordings"`
	Frames       int       `json:"frames"`
	VanillaIDs   int       `json:"vanillaIds"`
	CatalogError string    `json:"catalogError,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects a snapshot. Catalog failures are reported in the
// snapshot rather than returned.
func (s *Service) GetStatus(ctx context.Context) Status {
	now := time.Now()
	st := Status{
		Time:   now.UTC(),
		Uptime: now.Sub(s.deps.Started).Truncate(time.Second).String(),
	}
	if s.deps.Peers != nil {
		st.Clients = s.deps.Peers.Peers()
	}
	if s.deps.Store == nil {
		return st
	}

	listings, err := s.deps.Store.List(ctx)
	if err != nil {
		st.CatalogError = err.Error()
	}
	st.Recordings = len(listings)
	for _, l := range listings {
		st.Frames += l.Frames
	}
	if groups, err := s.deps.Store.Vanilla(ctx); err == nil {
		for _, g := range groups {
			st.VanillaIDs += len(g.IDs)
		}
	}
	return st
}

// WriteStatus refreshes the status file once.
func (s *Service) WriteStatus(ctx context.Context) (Status, error) {
	st := s.GetStatus(ctx)
	if s.deps.StatusPath == "" {
		return st, nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return st, fmt.Errorf("marshal status: %w", err)
	}
	if err := os.WriteFile(s.deps.StatusPath, append(data, '\n'), 0o644); err != nil {
		return st, fmt.Errorf("write status file: %w", err)
	}
	return st, nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval, "path", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			st, err := s.WriteStatus(context.Background())
			if err != nil {
				logger.Error("Error writing status", "error", err)
			}
			logger.Debug("Status", "clients", st.Clients, "recordings", st.Recordings, "uptime", st.Uptime)

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
