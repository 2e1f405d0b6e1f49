// Package dispatcher routes transport commands to their handlers, optionally
// through a bounded queue drained by a dedicated goroutine.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Queued is the result of a command accepted by a queued route.
const Queued = "queued"

var (
	// ErrUnknownCommand is returned for commands nobody registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking queue has no room.
	ErrQueueFull = errors.New("command queue full")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is one command received from a connected client.
type Event struct {
	Command string
	// Source identifies the connection the command arrived on.
	Source    string
	RequestID string
	Payload   json.RawMessage
	Timestamp time.Time
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Command)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Command, err)
	}
	return nil
}

// HandlerFunc processes an event and returns the reply payload.
type HandlerFunc func(Event) (any, error)

// Logger is the subset of *slog.Logger the dispatcher writes to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a route.
type Option func(*route)

// Buffered queues events for the command and handles them in order on a
// goroutine of their own. The sender gets Queued right away.
func Buffered(size int) Option {
	return func(r *route) {
		r.queueSize = size
	}
}

// Blocking makes a full queue wait for room instead of refusing the event.
func Blocking() Option {
	return func(r *route) {
		r.blocking = true
	}
}

// Logged logs every event of the command at debug level, and failures at
// error level.
func Logged() Option {
	return func(r *route) {
		r.logged = true
	}
}

type route struct {
	command   string
	handle    HandlerFunc
	queueSize int
	blocking  bool
	logged    bool
	queue     chan Event
	attr      attribute.KeyValue
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger

	queueDepth metric.Int64ObservableGauge
	handled    metric.Int64Counter
	dropped    metric.Int64Counter

	// mu guards routes and closed; senders hold it shared so Close never
	// closes a queue under them.
	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}

	m := meter()
	var err error
	d.queueDepth, err = m.Int64ObservableGauge(
		"recm.commands.queued",
		metric.WithDescription("Commands waiting in a route queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue depth gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for _, r := range d.routes {
			if r.queue != nil {
				o.ObserveInt64(d.queueDepth, int64(len(r.queue)), metric.WithAttributes(r.attr))
			}
		}
		return nil
	}, d.queueDepth)
	if err != nil {
		return nil, fmt.Errorf("registering queue depth callback: %w", err)
	}

	d.handled, err = m.Int64Counter(
		"recm.commands.handled",
		metric.WithDescription("Commands handled from a route queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	d.dropped, err = m.Int64Counter(
		"recm.commands.dropped",
		metric.WithDescription("Commands refused because their queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return d, nil
}

// Register routes command to h. Registering a command twice replaces the
// route; events already queued for the old one are still handled.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{command: command, handle: h, attr: attribute.String("command", command)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logged {
		r.handle = d.withLogging(command, r.handle)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.routes[command]; ok && old.queue != nil && !d.closed {
		close(old.queue)
	}
	if r.queueSize > 0 && !d.closed {
		r.queue = make(chan Event, r.queueSize)
		d.workers.Add(1)
		go d.drain(r)
	}
	d.routes[command] = r
}

// Dispatch hands e to the handler registered for its command.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	r, ok := d.routes[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if r.queue == nil {
		return r.handle(e)
	}
	return d.enqueue(r, e)
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	if r.blocking {
		r.queue <- e
		return Queued, nil
	}
	select {
	case r.queue <- e:
		return Queued, nil
	default:
		d.dropped.Add(context.Background(), 1, metric.WithAttributes(r.attr))
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.workers.Done()
	for e := range r.queue {
		if _, err := r.handle(e); err != nil && !r.logged {
			d.logger.Error("Queued command failed", "command", r.command, "source", e.Source, "error", err)
		}
		d.handled.Add(context.Background(), 1, metric.WithAttributes(r.attr))
	}
}

// HasHandler reports whether command is routed.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Commands lists the routed commands in name order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for c := range d.routes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Close refuses further events and waits until every queued event has been
// handled or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, r := range d.routes {
			if r.queue != nil {
				close(r.queue)
			}
		}
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining command queues: %w", ctx.Err())
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("Handling command", "command", command, "source", e.Source, "request", e.RequestID, "bytes", len(e.Payload))

		result, err := h(e)
		if err != nil {
			d.logger.Error("Command failed", "command", command, "source", e.Source, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("Command handled", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
