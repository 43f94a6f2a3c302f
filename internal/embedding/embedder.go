// Package embedding converts text into vector representations via a remote
// embedding service.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per input text, in input order.
	// An empty batch returns an empty result without a network call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size, or 0 before the first
	// successful call has discovered it.
	Dimensions() int
}
