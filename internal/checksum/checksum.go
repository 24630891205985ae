// Package checksum computes content digests for uploaded files. Digests
// are computed once at upload time and stored alongside the resource
// record; they double as strong cache validators when serving.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const bufferSize = 1024 * 1024

// Sum streams r through SHA-256 and returns the lowercase hex digest.
// The reader is consumed in fixed-size chunks so arbitrarily large
// inputs never get buffered in memory.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File computes the digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return Sum(f)
}
