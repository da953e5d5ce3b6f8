package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash generates a SHA-256 hash of the input string
func Hash(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// ShortHash returns the first 12 hex characters of the SHA-256 hash, used for
// deterministic document ids.
func ShortHash(input string) string {
	return Hash(input)[:12]
}
