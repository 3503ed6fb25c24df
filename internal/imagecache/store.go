// Package imagecache persists transformed image bytes between builds.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store maps a content key to encoded image bytes.
type Store interface {
	// Get returns the cached bytes for key; ok is false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key, format string, data []byte) error

	// Len returns the number of cached entries.
	Len(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// Key derives a cache key from the source bytes and a canonical description of the
// operation applied to them.
func Key(source, operation []byte) string {
	h := sha256.New()
	h.Write(source)
	h.Write([]byte{0})
	h.Write(operation)
	return hex.EncodeToString(h.Sum(nil))
}
