package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// DefaultServiceName names the OTel instrumentation scope and GELF facility.
const DefaultServiceName = "recm"

// Options selects the outputs Setup wires together. Nil outputs are skipped.
type Options struct {
	Level string
	// Console receives human-readable text, normally os.Stdout.
	Console io.Writer
	// File receives the same text, normally a rotating log file.
	File        io.Writer
	Provider    *sdklog.LoggerProvider
	GELF        GELFWriter
	ServiceName string
	// Context adds dynamic attributes to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger
	level  *slog.LevelVar

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{level: new(slog.LevelVar)}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger from opts, replacing any previous one.
func (m *SlogManager) Setup(opts Options) {
	m.level.Set(parseLevel(opts.Level))
	m.logProvider = opts.Provider
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: m.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, handlerOpts))
	}
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, handlerOpts))
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(opts.Provider)))
	}
	if opts.GELF != nil {
		handlers = append(handlers, NewGELFHandler(opts.GELF, m.level, opts.ServiceName))
	}

	var handler slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		handler = NewContextHandler(handler, opts.Context)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", opts.Level, "outputs", len(handlers))
}

// SetLevel changes the level of every output at runtime.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
