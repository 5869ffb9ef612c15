// Package util holds small helpers shared across the API.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier, optionally namespaced by prefix
// (e.g. "norm_3f2a..."). Collisions are not checked; 16 random bytes
// make them negligible at this system's scale.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
