package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/pkg/core"
)

func newTestCatalog(t *testing.T) (*Catalog, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	c, err := New(fs, Config{Dir: "stream", VanillaManifest: "vanilla.json"}, nil)
	require.NoError(t, err)
	return c, fs
}

func frames(n int, x float32) []core.Frame {
	out := make([]core.Frame, n)
	for i := range out {
		out[i] = core.Frame{
			Time:     uint32(i * 100),
			Position: core.Vector3{X: x + float32(i), Y: 10},
			Forward:  core.Vector3{Y: 1},
		}
	}
	return out
}

func fileNames(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, "stream")
	require.NoError(t, err)
	var names []string
	for _, i := range infos {
		names = append(names, i.Name())
	}
	return names
}

var drift = core.RecordingKey{Name: "drift", Model: "sultan"}

func TestSave_FirstRevision(t *testing.T) {
	c, fs := newTestCatalog(t)

	rec, err := c.Save(drift, frames(3, 0), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Revision)
	assert.Equal(t, []string{"drift_sultan_001.yvr"}, fileNames(t, fs))

	listings, err := c.List()
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, drift, listings[0].RecordingKey)
	assert.Equal(t, 1, listings[0].Revision)
	assert.Equal(t, 3, listings[0].Frames)
	assert.Nil(t, listings[0].Metadata)
}

func TestSave_NoOverwriteKeepsFiles(t *testing.T) {
	c, fs := newTestCatalog(t)
	_, err := c.Save(drift, frames(3, 0), nil, false)
	require.NoError(t, err)
	before, err := afero.ReadFile(fs, "stream/drift_sultan_001.yvr")
	require.NoError(t, err)

	_, err = c.Save(drift, frames(5, 50), &core.RecordingMetadata{}, false)
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, "a recording with this name and model already exists", err.Error())

	after, err := afero.ReadFile(fs, "stream/drift_sultan_001.yvr")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"drift_sultan_001.yvr"}, fileNames(t, fs))
}

func TestSave_OverwriteBumpsRevision(t *testing.T) {
	c, _ := newTestCatalog(t)

	for i := 1; i <= 4; i++ {
		rec, err := c.Save(drift, frames(2, float32(i*100)), nil, i > 1)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Revision)
	}

	listings, err := c.List()
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, 4, listings[0].Revision)
	assert.Equal(t, float32(400), listings[0].StartPosition.Position.X)

	_, got, err := c.Get(drift)
	require.NoError(t, err)
	assert.Equal(t, frames(2, 400), got)
}

func TestSave_WritesMetadataSidecar(t *testing.T) {
	c, fs := newTestCatalog(t)
	meta := &core.RecordingMetadata{Vehicle: &core.VehicleMetadata{
		PlateText: "RECM",
		Mods:      map[int]int{11: 3},
		Livery:    core.IntPtr(2),
	}}

	_, err := c.Save(drift, frames(2, 0), meta, false)
	require.NoError(t, err)
	ok, err := afero.Exists(fs, "stream/drift_sultan_001.json")
	require.NoError(t, err)
	assert.True(t, ok)

	listings, err := c.List()
	require.NoError(t, err)
	require.NotNil(t, listings[0].Metadata)
	assert.Equal(t, meta, listings[0].Metadata)
}

func TestSave_RejectsBadInput(t *testing.T) {
	c, fs := newTestCatalog(t)

	for _, key := range []core.RecordingKey{
		{Name: "", Model: "sultan"},
		{Name: "my_run", Model: "sultan"},
		{Name: "my run", Model: "sultan"},
		{Name: "run", Model: "../x"},
	} {
		_, err := c.Save(key, frames(1, 0), nil, false)
		assert.ErrorIs(t, err, ErrInvalidName, "key %+v", key)
	}

	_, err := c.Save(drift, nil, nil, false)
	var encErr *codec.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, core.ErrEmptyRecording)
	assert.Empty(t, fileNames(t, fs))
}

func TestList_SkipsCorruptFiles(t *testing.T) {
	c, fs := newTestCatalog(t)
	_, err := c.Save(drift, frames(2, 0), nil, false)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "stream/broken_adder_001.yvr", []byte("garbage"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "stream/readme.txt", []byte("ignored"), 0o644))

	listings, err := c.List()
	require.Error(t, err)
	var decErr *codec.DecodeError
	assert.ErrorAs(t, err, &decErr)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Contains(t, err.Error(), "broken_adder_001")
	require.Len(t, listings, 1)
	assert.Equal(t, drift, listings[0].RecordingKey)
}

func TestList_IgnoresMalformedMetadata(t *testing.T) {
	c, fs := newTestCatalog(t)
	_, err := c.Save(drift, frames(2, 0), nil, false)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "stream/drift_sultan_001.json", []byte("{"), 0o644))

	listings, err := c.List()
	require.NoError(t, err)
	assert.Nil(t, listings[0].Metadata)
}

func TestCompact(t *testing.T) {
	c, fs := newTestCatalog(t)
	meta := &core.RecordingMetadata{Vehicle: &core.VehicleMetadata{PlateText: "V3"}}
	for i := 1; i <= 3; i++ {
		var m *core.RecordingMetadata
		if i == 3 {
			m = meta
		}
		_, err := c.Save(drift, frames(2, float32(i)), m, true)
		require.NoError(t, err)
	}
	other := core.RecordingKey{Name: "lap", Model: "adder"}
	_, err := c.Save(other, frames(2, 0), nil, false)
	require.NoError(t, err)

	res, err := c.Compact()
	require.NoError(t, err)
	assert.Equal(t, CompactResult{Removed: 2, Renamed: 1}, res)
	assert.ElementsMatch(t, []string{
		"drift_sultan_001.yvr", "drift_sultan_001.json", "lap_adder_001.yvr",
	}, fileNames(t, fs))

	listing, got, err := c.Get(drift)
	require.NoError(t, err)
	assert.Equal(t, 1, listing.Revision)
	assert.Equal(t, frames(2, 3), got)
	assert.Equal(t, meta, listing.Metadata)

	again, err := c.Compact()
	require.NoError(t, err)
	assert.Equal(t, CompactResult{}, again)
}

func TestParseBase(t *testing.T) {
	tests := []struct {
		file string
		ok   bool
		rev  int
	}{
		{"drift_sultan_001.yvr", true, 1},
		{"drift_sultan_012.yvr", true, 12},
		{"drift_sultan_1000.yvr", true, 1000},
		{"drift_sultan_0002.yvr", false, 0},
		{"drift_sultan_+12.yvr", false, 0},
		{"drift_sultan_000.yvr", false, 0},
		{"drift_sultan_01.yvr", false, 0},
		{"drift_sultan_001.json", false, 0},
		{"drift_001.yvr", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			e, ok := parseBase(tt.file)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.rev, e.revision)
				assert.Equal(t, tt.file, e.base()+RecordingExt)
			}
		})
	}
}

func TestCompact_IgnoresNonCanonicalNames(t *testing.T) {
	c, fs := newTestCatalog(t)
	_, err := c.Save(drift, frames(2, 0), nil, false)
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "stream/drift_sultan_001.yvr")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "stream/drift_sultan_0002.yvr", data, 0o644))

	res, err := c.Compact()
	require.NoError(t, err)
	assert.Equal(t, CompactResult{}, res)
	assert.ElementsMatch(t, []string{"drift_sultan_001.yvr", "drift_sultan_0002.yvr"}, fileNames(t, fs))

	listings, err := c.List()
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, 1, listings[0].Revision)
}

func TestDelete(t *testing.T) {
	c, fs := newTestCatalog(t)
	_, err := c.Save(drift, frames(2, 0), &core.RecordingMetadata{}, false)
	require.NoError(t, err)
	_, err = c.Save(drift, frames(2, 1), nil, true)
	require.NoError(t, err)
	// Same name prefix, different group: must survive.
	_, err = c.Save(core.RecordingKey{Name: "drift", Model: "sultanrs"}, frames(2, 0), nil, false)
	require.NoError(t, err)

	n, err := c.Delete(drift)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"drift_sultanrs_001.yvr"}, fileNames(t, fs))

	_, err = c.Delete(drift)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = c.Get(drift)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVanilla(t *testing.T) {
	c, fs := newTestCatalog(t)
	manifest := `["policechase002","Airport001","policechase001","bad","ramp0x1","airport003"]`
	require.NoError(t, afero.WriteFile(fs, "vanilla.json", []byte(manifest), 0o644))

	groups, err := c.Vanilla()
	require.NoError(t, err)
	assert.Equal(t, []core.VanillaGroup{
		{Name: "Airport", IDs: []int{1}},
		{Name: "airport", IDs: []int{3}},
		{Name: "policechase", IDs: []int{1, 2}},
	}, groups)
}

func TestVanilla_MissingManifest(t *testing.T) {
	c, _ := newTestCatalog(t)
	groups, err := c.Vanilla()
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestVanilla_MalformedManifest(t *testing.T) {
	c, fs := newTestCatalog(t)
	require.NoError(t, afero.WriteFile(fs, "vanilla.json", []byte("{"), 0o644))
	_, err := c.Vanilla()
	assert.Error(t, err)
}

func TestWatcher_EmitsRegistrations(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	data, err := codec.Encode(frames(1, 0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drift_sultan_002.yvr"), data, 0o644))

	select {
	case reg := <-w.Events():
		assert.Equal(t, drift, reg.Recording.RecordingKey)
		assert.Equal(t, 2, reg.Recording.Revision)
	case <-time.After(5 * time.Second):
		t.Fatal("no registration received")
	}
}
