package core

import "strings"

// ModelHash is the game's case-insensitive one-at-a-time hash of a model name.
func ModelHash(name string) uint32 {
	var h uint32
	for _, c := range []byte(strings.ToLower(name)) {
		h += uint32(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}
