package playback

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/RecM/recm/pkg/core"
)

const instrumentationName = "github.com/RecM/recm/internal/playback"

type metrics struct {
	started metric.Int64Counter
	stopped metric.Int64Counter
	active  atomic.Int64
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.started, err = m.Int64Counter(
		"playback.sessions.started",
		metric.WithDescription("Playback sessions registered"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}

	out.stopped, err = m.Int64Counter(
		"playback.sessions.stopped",
		metric.WithDescription("Playback sessions torn down, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stopped counter: %w", err)
	}

	gauge, err := m.Int64ObservableGauge(
		"playback.sessions.active",
		metric.WithDescription("Currently registered playback sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, out.active.Load())
			return nil
		},
		gauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering active callback: %w", err)
	}
	return out, nil
}

func (m *metrics) sessionStarted(s *Session) {
	m.active.Add(1)
	m.started.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("player", s.PlayerControlled)))
}

func (m *metrics) sessionStopped(s *Session, reason core.StopReason) {
	m.active.Add(-1)
	m.stopped.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.Bool("player", s.PlayerControlled),
			attribute.String("reason", string(reason)),
		))
}
