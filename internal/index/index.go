// Package index provides the vector index: schema lifecycle, upsert by
// deterministic id, deletion by document, and k-nearest-neighbor search.
package index

import (
	"context"

	"github.com/hyperjump/ronbun/internal/models"
)

// VectorIndex stores embedded chunks and retrieves them by vector similarity.
type VectorIndex interface {
	// EnsureSchema creates the backing index sized to dims if it does not
	// exist. Idempotent: concurrent creators racing on the same index both
	// succeed.
	EnsureSchema(ctx context.Context, dims int) error

	// Upsert writes records by their explicit chunk id, overwriting previous
	// versions. The first failed write aborts the batch; re-running is safe
	// because ids are deterministic (at-least-once semantics).
	Upsert(ctx context.Context, records []models.IndexRecord) error

	// DeleteByDocumentID removes every record of the given document. A
	// missing index is a no-op, not an error.
	DeleteByDocumentID(ctx context.Context, documentID string) error

	// Search returns up to k records ranked by descending similarity to the
	// query vector. Fewer records than k (or none, when the index does not
	// exist yet) is not an error.
	Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error)
}

// NumCandidates returns the candidate pool size for a top-k KNN search. The
// backing store needs breadth beyond k for accurate ranking.
func NumCandidates(k int) int {
	if n := 4 * k; n > 10 {
		return n
	}
	return 10
}
