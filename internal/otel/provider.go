// Package otel builds the OpenTelemetry log pipeline behind the otelslog
// handler: a JSON file next to recm.log and, when configured, an OTLP
// collector.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/RecM/recm/internal/config"
)

// DefaultServiceName is reported when the config leaves it blank.
const DefaultServiceName = "recm"

// Config selects where exported log records go.
type Config struct {
	Enabled     bool
	ServiceName string
	// BatchTimeout bounds each export; zero keeps the SDK default.
	BatchTimeout time.Duration
	// LogWriter receives pretty-printed records, normally the OTel log file.
	LogWriter io.Writer
	// Endpoint is an OTLP/HTTP collector, host:port. Empty disables it.
	Endpoint string
	Insecure bool
}

// FromConfig combines the otel config section with the writer that receives
// exported records.
func FromConfig(c config.OTelConfig, logWriter io.Writer) Config {
	return Config{
		Enabled:      c.Enabled,
		ServiceName:  c.ServiceName,
		BatchTimeout: c.BatchTimeout,
		LogWriter:    logWriter,
		Endpoint:     c.Endpoint,
		Insecure:     c.Insecure,
	}
}

// Provider owns the log pipeline. A disabled Provider is valid and does
// nothing.
type Provider struct {
	logs     *sdklog.LoggerProvider
	instance string
}

// New builds the pipeline. Enabling OTel without a writer or an endpoint is
// an error rather than a silent no-op.
func New(cfg Config) (*Provider, error) {
	p := &Provider{}
	if !cfg.Enabled {
		return p, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	p.instance = uuid.NewString()

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceInstanceID(p.instance),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	exporters, err := exportersFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		return nil, errors.New("otel enabled but neither a log writer nor an endpoint is configured")
	}

	var batch []sdklog.BatchProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdklog.WithExportTimeout(cfg.BatchTimeout))
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, batch...)))
	}
	p.logs = sdklog.NewLoggerProvider(opts...)
	return p, nil
}

func exportersFor(ctx context.Context, cfg Config) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("otel file exporter: %w", err)
		}
		out = append(out, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel collector exporter %s: %w", cfg.Endpoint, err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// LoggerProvider feeds the otelslog bridge. Nil when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Instance is the service.instance.id stamped on every exported record, or
// "" when disabled.
func (p *Provider) Instance() string {
	return p.instance
}

// Meter returns a meter from the global provider; instruments are no-ops
// until a meter provider is installed.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Flush exports buffered records, for example before a crash report is
// written.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("otel flush: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the pipeline. Later calls do nothing.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	logs := p.logs
	p.logs = nil
	if err := logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel shutdown: %w", err)
	}
	return nil
}

// Enabled reports whether records are being exported.
func (p *Provider) Enabled() bool {
	return p.logs != nil
}
