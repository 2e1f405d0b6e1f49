package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/RecM/recm/pkg/core"
)

// vanillaSuffix is the length of the numeric id at the end of a vanilla entry.
const vanillaSuffix = 3

// Vanilla reads the built-in recording manifest and groups its entries by
// name. Entries look like "policechase001"; the trailing three digits are the
// recording id. The vanilla set is read-only; a missing manifest is an empty
// set.
func (c *Catalog) Vanilla() ([]core.VanillaGroup, error) {
	if c.cfg.VanillaManifest == "" {
		return nil, nil
	}
	data, err := afero.ReadFile(c.fs, c.cfg.VanillaManifest)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("No vanilla manifest", "path", c.cfg.VanillaManifest)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vanilla manifest: %w", err)
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse vanilla manifest: %w", err)
	}
	return GroupVanilla(entries), nil
}

// GroupVanilla groups manifest entries, sorting groups case-insensitively and
// ids ascending. Entries without a numeric suffix are dropped.
func GroupVanilla(entries []string) []core.VanillaGroup {
	byName := make(map[string][]int)
	for _, e := range entries {
		if len(e) <= vanillaSuffix {
			continue
		}
		name, suffix := e[:len(e)-vanillaSuffix], e[len(e)-vanillaSuffix:]
		id, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		byName[name] = append(byName[name], id)
	}

	groups := make([]core.VanillaGroup, 0, len(byName))
	for name, ids := range byName {
		sort.Ints(ids)
		groups = append(groups, core.VanillaGroup{Name: name, IDs: ids})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := strings.ToLower(groups[i].Name), strings.ToLower(groups[j].Name)
		if a != b {
			return a < b
		}
		return groups[i].Name < groups[j].Name
	})
	return groups
}
