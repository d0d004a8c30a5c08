package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyFingerprint returns a short stable identifier for an API key, safe to
// log and to use as a storage key. The raw key never leaves the process.
func KeyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
