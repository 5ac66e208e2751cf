package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores fetched source documents (the exclusion worksheet) between
// runs so a re-run inside the TTL does not hit the sheet service again.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a stable cache key from a source URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "aletheia:v1:" + hex.EncodeToString(sum[:])
}
