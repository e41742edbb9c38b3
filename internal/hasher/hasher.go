// Package hasher provides the content digests used for DAG node ids,
// chunk ids, and snapshot filenames.
//
// All ids are the first 16 hex characters (64 bits) of SHA-256. That
// width keeps ids readable in logs and filenames while making
// collisions negligible at indexing scale.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HexLength is the number of hex characters kept from the SHA-256 digest.
const HexLength = 16

// Hash returns the truncated hex digest of a string.
func Hash(data string) string {
	return HashBytes([]byte(data))
}

// HashBytes returns the truncated hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:HexLength]
}

// HashFile returns the truncated hex digest of a file's contents,
// streaming so large files don't get buffered whole.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:HexLength], nil
}
