// Package docid derives a deterministic document ID from a paper's source.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

// Derive returns a stable document ID for a paper. The first non-empty source
// wins: the source URL, then the file path (cleaned), then the title. The same
// source always yields the same ID, which is what makes ingestion idempotent.
// When nothing identifies the paper, a random UUID is returned as a last
// resort; such papers cannot be re-ingested idempotently.
func Derive(sourceURL, path, title string) string {
	switch {
	case sourceURL != "":
		return hash(sourceURL)
	case path != "":
		return hash(filepath.Clean(path))
	case title != "":
		return hash(title)
	default:
		return uuid.New().String()
	}
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
