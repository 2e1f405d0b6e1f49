package hostsim

import (
	"strings"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/pkg/core"
)

// CatalogResolver serves stored recordings the way the host streams them:
// by revision id and the "{name}_{model}_" playback name.
func CatalogResolver(c *catalog.Catalog) Resolver {
	return func(id int, name string) ([]core.Frame, bool) {
		parts := strings.Split(strings.TrimSuffix(name, "_"), "_")
		if len(parts) != 2 {
			return nil, false
		}
		key := core.RecordingKey{Name: parts[0], Model: parts[1]}
		listing, frames, err := c.Get(key)
		if err != nil || listing.Revision != id {
			return nil, false
		}
		return frames, true
	}
}

// StaticResolver serves a fixed set of recordings keyed by playback name and id.
func StaticResolver(recordings map[string]map[int][]core.Frame) Resolver {
	return func(id int, name string) ([]core.Frame, bool) {
		frames, ok := recordings[name][id]
		return frames, ok
	}
}
