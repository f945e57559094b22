package decisionlog

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaxHashSize bounds how much of a tool output is hashed.
const MaxHashSize = 1024 * 1024

// HashOutput returns the hex SHA-256 of the first MaxHashSize bytes of
// output, or "" for empty output.
func HashOutput(output []byte) string {
	if len(output) == 0 {
		return ""
	}
	if len(output) > MaxHashSize {
		output = output[:MaxHashSize]
	}
	sum := sha256.Sum256(output)
	return hex.EncodeToString(sum[:])
}
