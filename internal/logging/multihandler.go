package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler writes every record to each output Setup wired: console,
// rotating file, OTel bridge and GELF. An output that has its level set
// higher than the record's simply skips it.
type MultiHandler struct {
	outputs []slog.Handler
}

// NewMultiHandler combines outputs, dropping nil ones.
func NewMultiHandler(outputs ...slog.Handler) *MultiHandler {
	m := &MultiHandler{outputs: make([]slog.Handler, 0, len(outputs))}
	for _, h := range outputs {
		if h != nil {
			m.outputs = append(m.outputs, h)
		}
	}
	return m
}

// Enabled reports whether any output wants records at level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.outputs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes r to every enabled output. A failing output (a dropped
// Graylog connection, say) does not keep the record from the others; its
// error is returned with any other failures.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.outputs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return m
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) each(f func(slog.Handler) slog.Handler) *MultiHandler {
	out := make([]slog.Handler, len(m.outputs))
	for i, h := range m.outputs {
		out[i] = f(h)
	}
	return &MultiHandler{outputs: out}
}
