package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/storage/memory"
	"github.com/RecM/recm/internal/transport"
	"github.com/RecM/recm/pkg/core"
)

func testFrames(n int) []core.Frame {
	out := make([]core.Frame, n)
	for i := range out {
		out[i] = core.Frame{
			Time:     uint32(i * 100),
			Position: core.Vector3{X: float32(i), Y: 5, Z: 30},
			Velocity: core.Vector3{X: 10},
			Forward:  core.Vector3{Y: 1},
			Right:    core.Vector3{X: 1},
		}
	}
	return out
}

func seed(t *testing.T, fs afero.Fs, key core.RecordingKey, n int) {
	t.Helper()
	cat, err := catalog.New(fs, catalog.Config{Dir: "stream"}, nil)
	require.NoError(t, err)
	_, err = cat.Save(key, testFrames(n), nil, false)
	require.NoError(t, err)
}

// run executes recmctl against fs and returns stdout and stderr.
func run(t *testing.T, fs afero.Fs, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(fs)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--dir", "stream", "--no-color", "--config", t.TempDir()}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestList(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, core.RecordingKey{Name: "drift", Model: "sultan"}, 4)

	out, _, err := run(t, fs, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "drift")
	assert.Contains(t, out, "sultan")
	assert.Contains(t, out, "001")
}

func TestInspect(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, core.RecordingKey{Name: "drift", Model: "sultan"}, 4)

	out, _, err := run(t, fs, "inspect", "drift", "sultan")
	require.NoError(t, err)
	doc, err := codec.ParseDocument([]byte(out))
	require.NoError(t, err)
	assert.Len(t, doc.Items, 4)

	_, _, err = run(t, fs, "inspect", "nope", "sultan")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestImportCompactDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	data, err := codec.NewDocument(testFrames(6)).XML()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "lap.xml", data, 0o644))

	_, _, err = run(t, fs, "import", "lap.xml", "lap", "elegy")
	require.NoError(t, err)
	_, stderr, err := run(t, fs, "import", "lap.xml", "lap", "elegy")
	assert.ErrorIs(t, err, catalog.ErrAlreadyExists)
	assert.Contains(t, stderr, "--overwrite")
	_, _, err = run(t, fs, "import", "--overwrite", "lap.xml", "lap", "elegy")
	require.NoError(t, err)

	ok, err := afero.Exists(fs, "stream/lap_elegy_002.yvr")
	require.NoError(t, err)
	assert.True(t, ok)

	_, stderr, err = run(t, fs, "compact")
	require.NoError(t, err)
	assert.Contains(t, stderr, "removed=1")

	out, _, err := run(t, fs, "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"revision": 1`)

	_, stderr, err = run(t, fs, "delete", "lap", "elegy")
	require.NoError(t, err)
	assert.Contains(t, stderr, "revisions=1")
}

func TestVanilla(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "vanilla.json", []byte(`["policechase003","policechase001","Airport002"]`), 0o644))

	out, _, err := run(t, fs, "vanilla")
	require.NoError(t, err)
	assert.Equal(t, "Airport: 002\npolicechase: 001 003\n", out)
}

func TestSimulate(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, core.RecordingKey{Name: "drift", Model: "sultan"}, 20)

	_, stderr, err := run(t, fs, "simulate", "drift", "sultan")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Playback finished")
	assert.Contains(t, stderr, "reason=completed")
}

func TestSimulate_Limit(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, core.RecordingKey{Name: "drift", Model: "sultan"}, 50)
	cat, err := catalog.New(fs, catalog.Config{Dir: "stream"}, nil)
	require.NoError(t, err)

	var steps int
	r, err := simulate(context.Background(), cat, core.RecordingKey{Name: "drift", Model: "sultan"},
		simOptions{step: 100 * time.Millisecond, limit: time.Second}, nil,
		func(time.Duration, []string) { steps++ })
	require.NoError(t, err)
	assert.Equal(t, core.StopCancelled, r.Reason)
	assert.Equal(t, 10, steps)
	assert.Equal(t, "drift_sultan_", r.RecordingName)
}

func TestSimulate_BadStep(t *testing.T) {
	_, _, err := run(t, afero.NewMemMapFs(), "simulate", "--step", "0s", "a", "b")
	assert.Error(t, err)
}

func TestRemote(t *testing.T) {
	cat, err := catalog.New(afero.NewMemMapFs(), catalog.Config{Dir: "stream"}, nil)
	require.NoError(t, err)
	history := memory.New(config.MemoryConfig{})
	store := engine.NewLocalStore(engine.LocalStoreDependencies{Catalog: cat, History: history})
	_, err = store.Save(context.Background(), engine.SaveRequest{
		Key: core.RecordingKey{Name: "drift", Model: "sultan"}, Frames: testFrames(3),
	})
	require.NoError(t, err)

	srv, err := transport.NewServer(transport.ServerDependencies{Store: store, Catalog: cat, History: history},
		config.TransportConfig{Secret: "pw"})
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hs.Close()
	})

	fs := afero.NewMemMapFs()
	remote := func(args ...string) (string, string, error) {
		return run(t, fs, append([]string{"remote", "--server", hs.URL, "--secret", "pw"}, args...)...)
	}

	_, stderr, err := remote("status")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Server is up")

	out, _, err := remote("list")
	require.NoError(t, err)
	assert.Contains(t, out, "drift")

	out, _, err = remote("export", "drift", "sultan")
	require.NoError(t, err)
	doc, err := codec.ParseDocument([]byte(strings.TrimSpace(out)))
	require.NoError(t, err)
	assert.Len(t, doc.Items, 3)

	out, _, err = remote("history", "saves")
	require.NoError(t, err)
	assert.Contains(t, out, "drift_sultan")

	_, _, err = remote("delete", "drift", "sultan")
	require.NoError(t, err)
	_, _, err = remote("delete", "drift", "sultan")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, _, err = run(t, fs, "remote", "--server", hs.URL, "--secret", "wrong", "list")
	assert.Error(t, err)
}
