package common

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// URLHash returns the 128-bit hex fingerprint of a normalized URL, used
// as the persistent store key suffix. MD5 is sufficient here: collisions
// cost a skipped page, not correctness.
func URLHash(normalizedURL string) string {
	sum := md5.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// ContentHash returns the sha256 hex digest of page content, used for
// incremental change detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
