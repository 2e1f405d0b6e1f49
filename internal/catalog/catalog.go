// Package catalog stores compiled recordings on a filesystem directory.
//
// Files are named {name}_{model}_{NNN}.yvr where NNN is a zero-padded
// revision. An optional {name}_{model}_{NNN}.json sidecar carries the
// recording metadata. Only the highest revision of a (name, model) pair is
// ever listed.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/spf13/afero"

	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/pkg/core"
)

const (
	// RecordingExt is the extension of compiled recordings.
	RecordingExt = ".yvr"
	// MetadataExt is the extension of metadata sidecars.
	MetadataExt = ".json"
)

var (
	ErrAlreadyExists = errors.New("a recording with this name and model already exists")
	ErrNotFound      = errors.New("recording not found")
	ErrInvalidName   = errors.New("invalid recording name")
	// ErrUnreadable marks a stored recording List had to skip.
	ErrUnreadable = errors.New("recording unreadable")
)

// Config locates the catalog on its filesystem.
type Config struct {
	Dir             string // directory holding recordings, e.g. "stream"
	VanillaManifest string // path of the read-only vanilla id list
}

// Catalog manages the recordings stored under one directory.
type Catalog struct {
	mu     sync.Mutex
	fs     afero.Fs
	cfg    Config
	logger *slog.Logger
}

// New creates a catalog, making sure the directory exists.
func New(fs afero.Fs, cfg Config, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fs.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Catalog{fs: fs, cfg: cfg, logger: logger}, nil
}

// Dir returns the recordings directory.
func (c *Catalog) Dir() string {
	return c.cfg.Dir
}

// ValidateKey checks that a name and model can be encoded into a file name
// and split back unambiguously.
func ValidateKey(key core.RecordingKey) error {
	for field, v := range map[string]string{"name": key.Name, "model": key.Model} {
		if v == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidName, field)
		}
		if strings.ContainsAny(v, `_/\.`) {
			return fmt.Errorf("%w: %s %q contains a reserved character", ErrInvalidName, field, v)
		}
		if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
			return fmt.Errorf("%w: %s %q contains whitespace", ErrInvalidName, field, v)
		}
	}
	return nil
}

type entry struct {
	key      core.RecordingKey
	revision int
}

func (e entry) base() string { return e.key.Base(e.revision) }

// parseBase splits "name_model_NNN.yvr".
func parseBase(file string) (entry, bool) {
	if !strings.HasSuffix(file, RecordingExt) {
		return entry{}, false
	}
	parts := strings.Split(strings.TrimSuffix(file, RecordingExt), "_")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || len(parts[2]) < 3 {
		return entry{}, false
	}
	rev, err := strconv.Atoi(parts[2])
	if err != nil || rev < 1 {
		return entry{}, false
	}
	e := entry{key: core.RecordingKey{Name: parts[0], Model: parts[1]}, revision: rev}
	// only canonical names, so paths rebuilt from the entry match the file
	if e.base()+RecordingExt != file {
		return entry{}, false
	}
	return e, true
}

func (c *Catalog) binPath(e entry) string  { return path.Join(c.cfg.Dir, e.base()+RecordingExt) }
func (c *Catalog) metaPath(e entry) string { return path.Join(c.cfg.Dir, e.base()+MetadataExt) }

// scan groups every revision on disk, each group sorted by ascending revision.
func (c *Catalog) scan() (map[core.RecordingKey][]entry, error) {
	infos, err := afero.ReadDir(c.fs, c.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	groups := make(map[core.RecordingKey][]entry)
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		e, ok := parseBase(info.Name())
		if !ok {
			continue
		}
		groups[e.key] = append(groups[e.key], e)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].revision < g[j].revision })
	}
	return groups, nil
}

func sortedKeys(groups map[core.RecordingKey][]entry) []core.RecordingKey {
	keys := make([]core.RecordingKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Model < keys[j].Model
	})
	return keys
}

// Save encodes frames and stores them as a new revision.
// Without overwrite an existing (name, model) pair is left untouched and
// ErrAlreadyExists is returned.
func (c *Catalog) Save(key core.RecordingKey, frames []core.Frame, meta *core.RecordingMetadata, overwrite bool) (core.Recording, error) {
	if err := ValidateKey(key); err != nil {
		return core.Recording{}, err
	}
	data, err := codec.Encode(frames)
	if err != nil {
		return core.Recording{}, err
	}
	var metaData []byte
	if meta != nil {
		if metaData, err = json.Marshal(meta); err != nil {
			return core.Recording{}, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	groups, err := c.scan()
	if err != nil {
		return core.Recording{}, err
	}
	e := entry{key: key, revision: 1}
	if existing := groups[key]; len(existing) > 0 {
		if !overwrite {
			return core.Recording{}, ErrAlreadyExists
		}
		e.revision = existing[len(existing)-1].revision + 1
	}

	if err := afero.WriteFile(c.fs, c.binPath(e), data, 0o644); err != nil {
		return core.Recording{}, fmt.Errorf("write recording: %w", err)
	}
	if metaData != nil {
		if err := afero.WriteFile(c.fs, c.metaPath(e), metaData, 0o644); err != nil {
			_ = c.fs.Remove(c.binPath(e))
			return core.Recording{}, fmt.Errorf("write metadata: %w", err)
		}
	}

	c.logger.Info("Recording saved", "recording", e.base(), "frames", len(frames), "overwrite", overwrite)
	return core.Recording{RecordingKey: key, Revision: e.revision}, nil
}

// readMetadata returns nil when the sidecar is missing or unreadable.
func (c *Catalog) readMetadata(e entry) *core.RecordingMetadata {
	data, err := afero.ReadFile(c.fs, c.metaPath(e))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to read metadata", "recording", e.base(), "error", err)
		}
		return nil
	}
	var meta core.RecordingMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		c.logger.Warn("Ignoring malformed metadata", "recording", e.base(), "error", err)
		return nil
	}
	return &meta
}

func (c *Catalog) listing(e entry) (core.Listing, error) {
	data, err := afero.ReadFile(c.fs, c.binPath(e))
	if err != nil {
		return core.Listing{}, err
	}
	pose, err := codec.StartPose(data)
	if err != nil {
		return core.Listing{}, err
	}
	n, err := codec.FrameCount(data)
	if err != nil {
		return core.Listing{}, err
	}
	return core.Listing{
		Recording:     core.Recording{RecordingKey: e.key, Revision: e.revision},
		StartPosition: pose,
		Frames:        n,
		Metadata:      c.readMetadata(e),
	}, nil
}

// List returns one listing per (name, model), always the highest revision.
// Unreadable recordings are skipped; their errors are joined into the
// returned error while the readable listings are still returned.
func (c *Catalog) List() ([]core.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	groups, err := c.scan()
	if err != nil {
		return nil, err
	}
	var (
		out  []core.Listing
		errs []error
	)
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		current := g[len(g)-1]
		l, err := c.listing(current)
		if err != nil {
			c.logger.Warn("Skipping unreadable recording", "recording", current.base(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w: %w", current.base(), ErrUnreadable, err))
			continue
		}
		out = append(out, l)
	}
	return out, errors.Join(errs...)
}

// Get returns the current revision of a recording with its frames.
func (c *Catalog) Get(key core.RecordingKey) (core.Listing, []core.Frame, error) {
	if err := ValidateKey(key); err != nil {
		return core.Listing{}, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	groups, err := c.scan()
	if err != nil {
		return core.Listing{}, nil, err
	}
	g := groups[key]
	if len(g) == 0 {
		return core.Listing{}, nil, ErrNotFound
	}
	current := g[len(g)-1]
	data, err := afero.ReadFile(c.fs, c.binPath(current))
	if err != nil {
		return core.Listing{}, nil, fmt.Errorf("read recording: %w", err)
	}
	frames, err := codec.Decode(data)
	if err != nil {
		return core.Listing{}, nil, err
	}
	return core.Listing{
		Recording: core.Recording{RecordingKey: key, Revision: current.revision},
		StartPosition: core.Pose{
			Position: frames[0].Position,
			Heading:  core.HeadingFromForward(frames[0].Forward),
		},
		Frames:   len(frames),
		Metadata: c.readMetadata(current),
	}, frames, nil
}

// ReadRevision returns the raw binary of a stored revision.
func (c *Catalog) ReadRevision(r core.Recording) ([]byte, error) {
	data, err := afero.ReadFile(c.fs, c.binPath(entry{key: r.RecordingKey, revision: r.Revision}))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (c *Catalog) removeIfExists(p string) (bool, error) {
	err := c.fs.Remove(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete removes every revision and sidecar of a recording.
func (c *Catalog) Delete(key core.RecordingKey) (int, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	groups, err := c.scan()
	if err != nil {
		return 0, err
	}
	g := groups[key]
	if len(g) == 0 {
		return 0, ErrNotFound
	}
	for _, e := range g {
		if _, err := c.removeIfExists(c.binPath(e)); err != nil {
			return 0, fmt.Errorf("remove %s: %w", e.base(), err)
		}
		if _, err := c.removeIfExists(c.metaPath(e)); err != nil {
			return 0, fmt.Errorf("remove %s metadata: %w", e.base(), err)
		}
	}
	c.logger.Info("Recording deleted", "recording", key.String(), "revisions", len(g))
	return len(g), nil
}

// CompactResult counts the work done by Compact.
type CompactResult struct {
	Removed int // superseded revisions deleted
	Renamed int // survivors moved back to revision 001
}

// Compact deletes superseded revisions and renumbers survivors to 001.
// Running it twice in a row does nothing the second time.
func (c *Catalog) Compact() (CompactResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res CompactResult
	groups, err := c.scan()
	if err != nil {
		return res, err
	}
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		current := g[len(g)-1]
		for _, old := range g[:len(g)-1] {
			if _, err := c.removeIfExists(c.binPath(old)); err != nil {
				return res, fmt.Errorf("remove %s: %w", old.base(), err)
			}
			if _, err := c.removeIfExists(c.metaPath(old)); err != nil {
				return res, fmt.Errorf("remove %s metadata: %w", old.base(), err)
			}
			res.Removed++
		}
		if current.revision == 1 {
			continue
		}
		first := entry{key: k, revision: 1}
		if err := c.fs.Rename(c.binPath(current), c.binPath(first)); err != nil {
			return res, fmt.Errorf("rename %s: %w", current.base(), err)
		}
		if ok, err := afero.Exists(c.fs, c.metaPath(current)); err == nil && ok {
			if err := c.fs.Rename(c.metaPath(current), c.metaPath(first)); err != nil {
				return res, fmt.Errorf("rename %s metadata: %w", current.base(), err)
			}
		}
		res.Renamed++
	}
	if res.Removed > 0 || res.Renamed > 0 {
		c.logger.Info("Recordings compacted", "removed", res.Removed, "renamed", res.Renamed)
	}
	return res, nil
}
