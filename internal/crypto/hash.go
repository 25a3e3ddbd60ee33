package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash is a 32-byte SHA-256 digest, hex-encoded in its external
// representations.
type Hash [32]byte

// Sum256Hex returns the hex-encoded SHA-256 digest of data.
func Sum256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sum256 returns the raw SHA-256 digest of data.
func Sum256(data []byte) Hash {
	return sha256.Sum256(data)
}

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }
