// Package chunker provides content digests and deterministic text chunking.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the canonical hex-encoded SHA-256 digest of content.
// It is the document identity used for deduplication and cache keys.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DigestString returns the digest of a string, typically chunk text.
func DigestString(text string) string {
	return Digest([]byte(text))
}

// EstimateTokens estimates the token count of text. Four bytes per token is the
// usual approximation for English prose and close enough for chunk sizing stats.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
