// Package influx wraps the InfluxDB v2 client used for recording history
// time series, with a gzip line-protocol backup file when the server is
// unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/RecM/recm/pkg/core"
)

// Bucket names used by RecM.
const (
	BucketRecordings = "recm_recordings"
	BucketPlayback   = "recm_playback"
)

// DefaultBucketNames are the default InfluxDB buckets used by RecM.
var DefaultBucketNames = []string{BucketRecordings, BucketPlayback}

// Config holds the InfluxDB connection settings.
type Config struct {
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	// RetentionDays applies to buckets created on connect.
	RetentionDays int
	BackupPath    string
}

// URL renders the server address.
func (c Config) URL() string {
	protocol := c.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s:%s", protocol, c.Host, c.Port)
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	Client      influxdb2.Client
	Writers     map[string]influxdb2_api.WriteAPI
	BucketNames []string
	IsValid     bool

	mu           sync.Mutex
	backupFile   *os.File
	BackupWriter *gzip.Writer
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger,
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
	}
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer a ping, writes go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		if err := m.openBackup(); err != nil {
			return err
		}
		m.logger.Warn("InfluxDB client failed to initialize, using backup writer",
			"url", m.cfg.URL(), "backupPath", m.cfg.BackupPath, "error", err)
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.logger.Info("InfluxDB client initialized", "url", m.cfg.URL())
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influxdb unreachable and no backup path configured")
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.logger.Info("Organization not found, creating", "org", orgName)
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", orgName, err)
		}
	}

	retention := m.cfg.RetentionDays
	if retention <= 0 {
		retention = 90
	}
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.logger.Info("Bucket not found, creating", "bucket", bucket)
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: int64(retention) * 24 * 60 * 60,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		w := m.Client.WriteAPI(m.cfg.Org, bucket)
		m.Writers[bucket] = w

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.logger.Error("Error sending data to InfluxDB", "bucket", bucketName, "error", writeErr)
			}
		}(bucket, w.Errors())
	}
	m.logger.Debug("InfluxDB writers initialized", "buckets", len(m.Writers))
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := strings.TrimSuffix(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// SavePoint describes a stored recording revision.
func SavePoint(e core.SaveEvent) *influxdb2_write.Point {
	return influxdb2_write.NewPoint("recording_saved",
		map[string]string{"name": e.Name, "model": e.Model},
		map[string]interface{}{
			"revision":    e.Revision,
			"frames":      e.Frames,
			"duration_ms": e.Duration.Milliseconds(),
			"overwrite":   e.Overwrite,
		},
		e.Time)
}

// DeletePoint describes a deleted recording group.
func DeletePoint(e core.DeleteEvent) *influxdb2_write.Point {
	return influxdb2_write.NewPoint("recording_deleted",
		map[string]string{"name": e.Name, "model": e.Model},
		map[string]interface{}{"removed": e.Removed},
		e.Time)
}

// RunPoint describes a finished playback session.
func RunPoint(r core.PlaybackRun) *influxdb2_write.Point {
	kind := "autonomous"
	if r.PlayerControlled {
		kind = "player"
	}
	return influxdb2_write.NewPoint("playback_run",
		map[string]string{"recording": r.RecordingName, "reason": string(r.Reason), "kind": kind},
		map[string]interface{}{
			"session":      r.SessionID,
			"played_ms":    r.StoppedAt.Sub(r.StartedAt).Milliseconds(),
			"duration_ms":  r.Duration.Milliseconds(),
			"trail_length": r.TrailLength,
		},
		r.StoppedAt)
}
