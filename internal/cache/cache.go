package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the storage interface behind the evidence store. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the cache key for a normalized query string.
func Key(normalizedQuery string) string {
	hash := sha256.Sum256([]byte(normalizedQuery))
	return "factcheck:v1:" + hex.EncodeToString(hash[:])
}
