package lock

import (
	"crypto/sha256"
	"encoding/binary"
)

// Key derives the 64-bit lock key for a target: the first eight bytes of SHA-256(targetID)
// read big-endian as a signed integer.
func Key(targetID string) int64 {
	sum := sha256.Sum256([]byte(targetID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
