// Package influxstorage writes recording history as InfluxDB time series.
package influxstorage

import (
	"context"
	"time"

	"github.com/RecM/recm/internal/influx"
	"github.com/RecM/recm/pkg/core"
)

// connectTimeout bounds the ping and bucket setup in Init.
const connectTimeout = 10 * time.Second

// Backend implements storage.Backend on top of an influx.Manager. It is
// write-only; history queries need a gorm or memory backend.
type Backend struct {
	manager *influx.Manager
}

// New creates a new InfluxDB storage backend.
func New(manager *influx.Manager) *Backend {
	return &Backend{manager: manager}
}

// Init connects, falling back to the gzip backup file when the server is down.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return b.manager.Connect(ctx)
}

// Close flushes pending points.
func (b *Backend) Close() error {
	return b.manager.Close()
}

func (b *Backend) RecordSave(e *core.SaveEvent) error {
	return b.manager.WritePoint(influx.BucketRecordings, influx.SavePoint(*e))
}

func (b *Backend) RecordDelete(e *core.DeleteEvent) error {
	return b.manager.WritePoint(influx.BucketRecordings, influx.DeletePoint(*e))
}

func (b *Backend) RecordPlayback(run *core.PlaybackRun) error {
	return b.manager.WritePoint(influx.BucketPlayback, influx.RunPoint(*run))
}
