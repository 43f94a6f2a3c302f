// Package knowledge composes the chunker, embedding client, and vector index
// into the knowledge base: ingest, semantic query, and forget.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperjump/ronbun/internal/chunker"
	"github.com/hyperjump/ronbun/internal/docid"
	"github.com/hyperjump/ronbun/internal/embedding"
	"github.com/hyperjump/ronbun/internal/index"
	"github.com/hyperjump/ronbun/internal/models"
	"github.com/hyperjump/ronbun/pkg/utils"
	"go.uber.org/zap"
)

// Query defaults.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.0
)

// KnowledgeBase is the facade over chunking, embedding, and the vector index.
// Every operation is a sequence of blocking network calls on the caller's
// goroutine; all mutable state lives in the backing store.
type KnowledgeBase struct {
	splitter *chunker.Splitter
	embedder embedding.Embedder
	index    index.VectorIndex
	logger   *zap.Logger
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithLogger sets a logger for ingest/query events.
func WithLogger(l *zap.Logger) Option {
	return func(kb *KnowledgeBase) { kb.logger = l }
}

// New creates a knowledge base with the given dependencies.
func New(splitter *chunker.Splitter, embedder embedding.Embedder, idx index.VectorIndex, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		splitter: splitter,
		embedder: embedder,
		index:    idx,
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Ingest chunks the document, embeds all chunks in one batch, and upserts the
// records under deterministic ids. A document with no text is a logged no-op.
// Prior records of the same document are deleted first so that re-ingesting a
// shorter version leaves no orphaned chunks.
func (kb *KnowledgeBase) Ingest(ctx context.Context, doc models.Document) error {
	id := doc.ID
	if id == "" {
		id = docid.Derive(doc.SourceURL, doc.Path, doc.Title)
	}

	chunks := kb.splitter.Split(doc.RawText)
	if len(chunks) == 0 {
		if kb.logger != nil {
			kb.logger.Warn("empty document, nothing to ingest",
				zap.String("document_id", id),
				zap.String("title", utils.Truncate(doc.Title, 80)))
		}
		return nil
	}

	vectors, err := kb.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}

	if err := kb.index.EnsureSchema(ctx, len(vectors[0])); err != nil {
		return fmt.Errorf("failed to prepare index: %w", err)
	}
	if err := kb.index.DeleteByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("failed to drop stale records: %w", err)
	}

	now := time.Now().UTC()
	records := make([]models.IndexRecord, len(chunks))
	for i, text := range chunks {
		chunk := models.Chunk{DocumentID: id, Seq: i + 1, Text: text}
		records[i] = models.IndexRecord{
			ChunkID:    chunk.ID(),
			DocumentID: id,
			Title:      doc.Title,
			SourceURL:  doc.SourceURL,
			Text:       text,
			Embedding:  vectors[i],
			IngestedAt: now,
			Metadata: models.RecordMetadata{
				Length:    utf8.RuneCountInString(text),
				WordCount: utils.WordCount(text),
			},
		}
	}
	if err := kb.index.Upsert(ctx, records); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}

	if kb.logger != nil {
		kb.logger.Info("document ingested",
			zap.String("document_id", id),
			zap.String("title", utils.Truncate(doc.Title, 80)),
			zap.Int("chunks", len(chunks)))
	}
	return nil
}

// Query embeds the text once, runs a KNN search, and filters out results
// below minScore, preserving descending score order. A blank query returns
// nothing without touching the network.
func (kb *KnowledgeBase) Query(ctx context.Context, text string, topK int, minScore float64) ([]models.SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := kb.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := kb.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	if kb.logger != nil {
		kb.logger.Debug("query answered",
			zap.String("query", utils.Truncate(text, 80)),
			zap.Int("hits", len(filtered)))
	}
	return filtered, nil
}

// Forget removes every record of the given document from the index.
func (kb *KnowledgeBase) Forget(ctx context.Context, documentID string) error {
	if err := kb.index.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("failed to forget document %s: %w", documentID, err)
	}
	if kb.logger != nil {
		kb.logger.Info("document forgotten", zap.String("document_id", documentID))
	}
	return nil
}
