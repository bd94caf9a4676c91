package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"songtree/internal/catalog"
)

// SHA256Checksummer computes SHA-256 content digests, the catalog's strong
// checksum format. It is a pure function over file content; no state.
type SHA256Checksummer struct{}

// NewSHA256Checksummer creates a checksummer.
func NewSHA256Checksummer() *SHA256Checksummer {
	return &SHA256Checksummer{}
}

// Sum reads the full file content and returns its digest as a lowercase hex
// string.
func (SHA256Checksummer) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compile-time check that SHA256Checksummer implements catalog.Checksummer.
var _ catalog.Checksummer = (*SHA256Checksummer)(nil)
