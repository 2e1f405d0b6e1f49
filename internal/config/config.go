package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the JSON config file looked up in the config directory.
const FileName = "recm.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. RECM_LOGLEVEL or
// RECM_TRANSPORT_SECRET.
const EnvPrefix = "RECM"

// MemoryConfig holds in-memory history backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory sqlite backend settings.
type SQLiteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects the history backends. More than one backend fans
// out every write.
type StorageConfig struct {
	Backends      []string      `json:"backends" mapstructure:"backends"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	Memory        MemoryConfig  `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Protocol      string `json:"protocol" mapstructure:"protocol"`
	Host          string `json:"host" mapstructure:"host"`
	Port          string `json:"port" mapstructure:"port"`
	Token         string `json:"token" mapstructure:"token"`
	Org           string `json:"org" mapstructure:"org"`
	RetentionDays int    `json:"retentionDays" mapstructure:"retentionDays"`
	BackupPath    string `json:"backupPath" mapstructure:"backupPath"`
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry log export settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// RecordingsConfig locates the recording catalog.
type RecordingsConfig struct {
	Dir             string `json:"dir" mapstructure:"dir"`
	VanillaManifest string `json:"vanillaManifest" mapstructure:"vanillaManifest"`
	CompactOnStart  bool   `json:"compactOnStart" mapstructure:"compactOnStart"`
	Watch           bool   `json:"watch" mapstructure:"watch"`
}

// CaptureConfig tunes the frame sampler.
type CaptureConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// PlaybackConfig tunes playback sessions.
type PlaybackConfig struct {
	LoadTimeout       time.Duration `json:"loadTimeout" mapstructure:"loadTimeout"`
	LoadPollInterval  time.Duration `json:"loadPollInterval" mapstructure:"loadPollInterval"`
	ModelLoadTimeout  time.Duration `json:"modelLoadTimeout" mapstructure:"modelLoadTimeout"`
	ModelPollInterval time.Duration `json:"modelPollInterval" mapstructure:"modelPollInterval"`
	Cooldown          time.Duration `json:"cooldown" mapstructure:"cooldown"`
	TrailInterval     time.Duration `json:"trailInterval" mapstructure:"trailInterval"`
	DefaultModel      string        `json:"defaultModel" mapstructure:"defaultModel"`
	DriverModel       string        `json:"driverModel" mapstructure:"driverModel"`
	TickResolution    time.Duration `json:"tickResolution" mapstructure:"tickResolution"`
}

// TransportConfig holds the websocket server and client settings.
type TransportConfig struct {
	Listen         string        `json:"listen" mapstructure:"listen"`
	URL            string        `json:"url" mapstructure:"url"`
	Secret         string        `json:"secret" mapstructure:"secret"`
	AllowOpen      []string      `json:"allowOpen" mapstructure:"allowOpen"`
	ChunkSize      int           `json:"chunkSize" mapstructure:"chunkSize"`
	RequestTimeout time.Duration `json:"requestTimeout" mapstructure:"requestTimeout"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./recmlogs")
	viper.SetDefault("serverName", "recm")

	viper.SetDefault("recordings.dir", "stream")
	viper.SetDefault("recordings.vanillaManifest", "vanilla.json")
	viper.SetDefault("recordings.compactOnStart", true)
	viper.SetDefault("recordings.watch", true)

	viper.SetDefault("capture.interval", "100ms")

	viper.SetDefault("playback.loadTimeout", "7s")
	viper.SetDefault("playback.loadPollInterval", "1s")
	viper.SetDefault("playback.modelLoadTimeout", "10s")
	viper.SetDefault("playback.modelPollInterval", "100ms")
	viper.SetDefault("playback.cooldown", "1s")
	viper.SetDefault("playback.trailInterval", "120ms")
	viper.SetDefault("playback.defaultModel", "dubsta2")
	viper.SetDefault("playback.driverModel", "s_m_y_airworker")
	viper.SetDefault("playback.tickResolution", "10ms")

	viper.SetDefault("transport.listen", ":30130")
	viper.SetDefault("transport.url", "ws://localhost:30130/ws")
	viper.SetDefault("transport.secret", "")
	viper.SetDefault("transport.allowOpen", []string{})
	viper.SetDefault("transport.chunkSize", 16*1024)
	viper.SetDefault("transport.requestTimeout", "10s")

	viper.SetDefault("storage.backends", []string{"memory"})
	viper.SetDefault("storage.flushInterval", "2s")
	viper.SetDefault("storage.memory.outputDir", "./history")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "./history/recm.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "recm")
	viper.SetDefault("db.sslMode", "disable")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "recm")
	viper.SetDefault("influx.retentionDays", 90)
	viper.SetDefault("influx.backupPath", "./history/influx_backup.log.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "recm")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from the JSON file in configDir and sets default
// values. A .env file next to it is loaded into the environment first;
// RECM_* variables override file values. A missing config file is reported
// as a wrapped viper.ConfigFileNotFoundError, with defaults still in place.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

func GetRecordingsConfig() RecordingsConfig {
	return RecordingsConfig{
		Dir:             viper.GetString("recordings.dir"),
		VanillaManifest: viper.GetString("recordings.vanillaManifest"),
		CompactOnStart:  viper.GetBool("recordings.compactOnStart"),
		Watch:           viper.GetBool("recordings.watch"),
	}
}

func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{Interval: viper.GetDuration("capture.interval")}
}

func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		LoadTimeout:       viper.GetDuration("playback.loadTimeout"),
		LoadPollInterval:  viper.GetDuration("playback.loadPollInterval"),
		ModelLoadTimeout:  viper.GetDuration("playback.modelLoadTimeout"),
		ModelPollInterval: viper.GetDuration("playback.modelPollInterval"),
		Cooldown:          viper.GetDuration("playback.cooldown"),
		TrailInterval:     viper.GetDuration("playback.trailInterval"),
		DefaultModel:      viper.GetString("playback.defaultModel"),
		DriverModel:       viper.GetString("playback.driverModel"),
		TickResolution:    viper.GetDuration("playback.tickResolution"),
	}
}

// GetTransportConfig returns the websocket settings. allowOpen accepts a
// JSON array or a comma separated env value.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		Listen:         viper.GetString("transport.listen"),
		URL:            viper.GetString("transport.url"),
		Secret:         viper.GetString("transport.secret"),
		AllowOpen:      splitList(viper.GetStringSlice("transport.allowOpen")),
		ChunkSize:      viper.GetInt("transport.chunkSize"),
		RequestTimeout: viper.GetDuration("transport.requestTimeout"),
	}
}

// GetStorageConfig returns the history backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Backends:      splitList(viper.GetStringSlice("storage.backends")),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
		SSLMode:  viper.GetString("db.sslMode"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Protocol:      viper.GetString("influx.protocol"),
		Host:          viper.GetString("influx.host"),
		Port:          viper.GetString("influx.port"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		RetentionDays: viper.GetInt("influx.retentionDays"),
		BackupPath:    viper.GetString("influx.backupPath"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns OpenTelemetry configuration
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
