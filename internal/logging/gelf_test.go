package logging

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGELF struct {
	mu   sync.Mutex
	msgs []gelf.Message
}

func (f *fakeGELF) WriteMessage(m *gelf.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, *m)
	return nil
}

func (f *fakeGELF) all() []gelf.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gelf.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestGELFHandler_Fields(t *testing.T) {
	w := &fakeGELF{}
	logger := slog.New(NewGELFHandler(w, slog.LevelDebug, "recm"))

	logger.With("component", "catalog").
		WithGroup("save").
		Error("write failed", "frames", 42, "overwrite", true, slog.Group("key", "name", "drift"))

	msgs := w.all()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "1.1", m.Version)
	assert.Equal(t, "write failed", m.Short)
	assert.Equal(t, int32(3), m.Level)
	assert.Equal(t, "recm", m.Facility)
	assert.Equal(t, "catalog", m.Extra["_component"])
	assert.Equal(t, int64(42), m.Extra["_save.frames"])
	assert.Equal(t, true, m.Extra["_save.overwrite"])
	assert.Equal(t, "drift", m.Extra["_save.key.name"])
	assert.Equal(t, "ERROR", m.Extra["_level_name"])
}

func TestGELFHandler_Level(t *testing.T) {
	w := &fakeGELF{}
	h := NewGELFHandler(w, slog.LevelWarn, "recm")
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))

	slog.New(h).Info("dropped")
	slog.New(h).Warn("kept")
	require.Len(t, w.all(), 1)
	assert.Equal(t, int32(4), w.all()[0].Level)
}

func TestSyslogLevel(t *testing.T) {
	assert.Equal(t, int32(7), syslogLevel(slog.LevelDebug))
	assert.Equal(t, int32(6), syslogLevel(slog.LevelInfo))
	assert.Equal(t, int32(4), syslogLevel(slog.LevelWarn))
	assert.Equal(t, int32(3), syslogLevel(slog.LevelError))
}

func TestContextHandler_StateStaysTopLevel(t *testing.T) {
	w := &fakeGELF{}
	calls := 0
	h := NewContextHandler(NewGELFHandler(w, slog.LevelInfo, "recm"), func() []slog.Attr {
		calls++
		return []slog.Attr{slog.Bool("capturing", true)}
	})

	slog.New(h).With("session", "b7f3").WithGroup("playback").Info("started", "model", "sultan")
	assert.Equal(t, 1, calls)
	require.Len(t, w.all(), 1)
	extra := w.all()[0].Extra
	assert.Equal(t, true, extra["_capturing"])
	assert.Equal(t, "b7f3", extra["_session"])
	assert.Equal(t, "sultan", extra["_playback.model"])
	assert.NotContains(t, extra, "_playback.capturing")
}

func TestContextHandler_ProviderPerRecord(t *testing.T) {
	w := &fakeGELF{}
	clients := 0
	h := NewContextHandler(NewGELFHandler(w, slog.LevelInfo, "recm"), func() []slog.Attr {
		clients++
		return []slog.Attr{slog.Int("clients", clients), {}}
	})

	logger := slog.New(h)
	logger.Debug("filtered")
	logger.Info("first")
	logger.Info("second")

	require.Len(t, w.all(), 2)
	assert.Equal(t, 2, clients)
	assert.EqualValues(t, 1, w.all()[0].Extra["_clients"])
	assert.EqualValues(t, 2, w.all()[1].Extra["_clients"])
	assert.NotContains(t, w.all()[1].Extra, "_")
}

func TestContextHandler_NilProvider(t *testing.T) {
	w := &fakeGELF{}
	slog.New(NewContextHandler(NewGELFHandler(w, slog.LevelInfo, "recm"), nil)).Info("plain", "k", "v")

	require.Len(t, w.all(), 1)
	assert.Equal(t, "v", w.all()[0].Extra["_k"])
}
