// Package checksum fingerprints document files so external edits can be noticed.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Equal reports whether data hashes to sum. An empty sum never matches.
func Equal(data []byte, sum string) bool {
	return sum != "" && Sum(data) == sum
}
