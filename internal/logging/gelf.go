package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELFWriter sends one GELF message. *gelf.Writer satisfies it.
type GELFWriter interface {
	WriteMessage(m *gelf.Message) error
}

// NewGraylogWriter dials a Graylog UDP input.
func NewGraylogWriter(addr, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("create GELF writer for %s: %w", addr, err)
	}
	w.Facility = facility
	return w, nil
}

// GELFHandler is a slog.Handler that ships records to Graylog.
type GELFHandler struct {
	w        GELFWriter
	level    slog.Leveler
	host     string
	facility string
	attrs    []slog.Attr
	group    string
	mu       *sync.Mutex
}

// NewGELFHandler creates a handler writing records at or above level to w.
func NewGELFHandler(w GELFWriter, level slog.Leveler, facility string) *GELFHandler {
	host, _ := os.Hostname()
	return &GELFHandler{w: w, level: level, host: host, facility: facility, mu: &sync.Mutex{}}
}

func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// syslogLevel maps slog levels onto the syslog severities GELF uses.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}

func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+1)
	extra["_level_name"] = r.Level.String()
	for _, a := range h.attrs {
		addExtra(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.group, a)
		return true
	})

	msg := &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.w.WriteMessage(msg)
}

// addExtra flattens a into GELF additional fields, which must start with _.
func addExtra(extra map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addExtra(extra, key, ga)
		}
		return
	}
	key = "_" + strings.ReplaceAll(key, " ", "_")
	switch a.Value.Kind() {
	case slog.KindString:
		extra[key] = a.Value.String()
	case slog.KindInt64:
		extra[key] = a.Value.Int64()
	case slog.KindUint64:
		extra[key] = a.Value.Uint64()
	case slog.KindFloat64:
		extra[key] = a.Value.Float64()
	case slog.KindBool:
		extra[key] = a.Value.Bool()
	default:
		extra[key] = a.Value.String()
	}
}

func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}
