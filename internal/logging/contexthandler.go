package logging

import (
	"context"
	"log/slog"
)

// ContextProvider reports live process state, such as connected clients or
// whether a capture is running, as attributes. It is called once per record
// and must not log.
type ContextProvider func() []slog.Attr

// ContextHandler stamps each record with the provider's attributes. They
// always land at the top level, even under WithGroup, so GELF and OTel
// field names stay the same for every component.
type ContextHandler struct {
	base     slog.Handler
	provider ContextProvider
	// scope replays WithAttrs and WithGroup calls on top of the state
	// attributes.
	scope []scopeStep
}

type scopeStep struct {
	group string
	attrs []slog.Attr
}

// NewContextHandler wraps base. A nil provider adds nothing.
func NewContextHandler(base slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{base: base, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.scoped(h.state()).Handle(ctx, r)
}

func (h *ContextHandler) state() []slog.Attr {
	if h.provider == nil {
		return nil
	}
	attrs := h.provider()
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Key != "" {
			out = append(out, a)
		}
	}
	return out
}

func (h *ContextHandler) scoped(state []slog.Attr) slog.Handler {
	out := h.base
	if len(state) > 0 {
		out = out.WithAttrs(state)
	}
	for _, s := range h.scope {
		if s.group != "" {
			out = out.WithGroup(s.group)
		} else {
			out = out.WithAttrs(s.attrs)
		}
	}
	return out
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(scopeStep{attrs: attrs})
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(scopeStep{group: name})
}

func (h *ContextHandler) with(s scopeStep) *ContextHandler {
	scope := make([]scopeStep, len(h.scope), len(h.scope)+1)
	copy(scope, h.scope)
	return &ContextHandler{base: h.base, provider: h.provider, scope: append(scope, s)}
}
