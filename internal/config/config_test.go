package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{
		"logLevel": "debug",
		"recordings": { "dir": "/srv/recm/stream" },
		"playback": { "cooldown": "2s", "defaultModel": "sultan" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, "/srv/recm/stream", GetRecordingsConfig().Dir)
	assert.Equal(t, 2*time.Second, GetPlaybackConfig().Cooldown)
	assert.Equal(t, "sultan", GetPlaybackConfig().DefaultModel)
	assert.Equal(t, "10.0.0.1", GetDBConfig().Host)
	assert.Equal(t, "5433", GetDBConfig().Port)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "info", GetString("logLevel"))
	assert.Equal(t, "./recmlogs", GetString("logsDir"))

	rec := GetRecordingsConfig()
	assert.Equal(t, "stream", rec.Dir)
	assert.Equal(t, "vanilla.json", rec.VanillaManifest)
	assert.True(t, rec.CompactOnStart)

	assert.Equal(t, 100*time.Millisecond, GetCaptureConfig().Interval)

	pb := GetPlaybackConfig()
	assert.Equal(t, 7*time.Second, pb.LoadTimeout)
	assert.Equal(t, time.Second, pb.LoadPollInterval)
	assert.Equal(t, 10*time.Second, pb.ModelLoadTimeout)
	assert.Equal(t, 100*time.Millisecond, pb.ModelPollInterval)
	assert.Equal(t, time.Second, pb.Cooldown)
	assert.Equal(t, 120*time.Millisecond, pb.TrailInterval)
	assert.Equal(t, "dubsta2", pb.DefaultModel)
	assert.Equal(t, "s_m_y_airworker", pb.DriverModel)

	tr := GetTransportConfig()
	assert.Equal(t, ":30130", tr.Listen)
	assert.Empty(t, tr.AllowOpen)
	assert.Equal(t, 16*1024, tr.ChunkSize)
	assert.Equal(t, 10*time.Second, tr.RequestTimeout)

	st := GetStorageConfig()
	assert.Equal(t, []string{"memory"}, st.Backends)
	assert.Equal(t, 3*time.Minute, st.SQLite.DumpInterval)
	assert.True(t, st.Memory.CompressOutput)

	assert.Equal(t, "disable", GetDBConfig().SSLMode)
	assert.Equal(t, 90, GetInfluxConfig().RetentionDays)
	assert.False(t, GetGraylogConfig().Enabled)

	otel := GetOTelConfig()
	assert.False(t, otel.Enabled)
	assert.Equal(t, "recm", otel.ServiceName)
	assert.Equal(t, 5*time.Second, otel.BatchTimeout)
	assert.True(t, otel.Insecure)
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	var notFound viper.ConfigFileNotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "stream", GetRecordingsConfig().Dir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{"transport": {"secret": "from-file"}}`)
	t.Setenv("RECM_TRANSPORT_SECRET", "from-env")
	t.Setenv("RECM_TRANSPORT_ALLOWOPEN", "alice, bob")

	require.NoError(t, Load(dir))

	tr := GetTransportConfig()
	assert.Equal(t, "from-env", tr.Secret)
	assert.Equal(t, []string{"alice", "bob"}, tr.AllowOpen)
}

func TestLoad_DotEnvFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RECM_SERVERNAME=garage\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("RECM_SERVERNAME") })

	require.NoError(t, Load(dir))
	assert.Equal(t, "garage", GetString("serverName"))
}

func TestStorageBackendsList(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("storage.backends", []string{"sqlite", "influx"})
	assert.Equal(t, []string{"sqlite", "influx"}, GetStorageConfig().Backends)
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("intKey", 42)
	viper.Set("boolKey", true)
	viper.Set("durKey", "250ms")

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("intKey"))
	assert.True(t, GetBool("boolKey"))
	assert.Equal(t, 250*time.Millisecond, GetDuration("durKey"))
}
