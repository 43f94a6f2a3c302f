// Package models defines core data structures for papers, index records, and search results.
package models

import (
	"fmt"
	"time"
)

// Document is a paper submitted for ingestion. ID may be left empty, in which
// case it is derived deterministically from SourceURL, Path, or Title (in that
// order) so that re-ingesting the same source overwrites instead of duplicating.
type Document struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url,omitempty"`
	Path      string `json:"path,omitempty"`
	RawText   string `json:"raw_text"`
}

// Chunk is a bounded slice of a document's text, the unit of embedding and
// retrieval. Seq is 1-based and contiguous within a document.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
}

// ID returns the deterministic chunk identity: the document id plus the
// zero-padded sequence number. Stable across re-ingestion of the same source.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s-%04d", c.DocumentID, c.Seq)
}

// RecordMetadata carries per-chunk statistics persisted alongside the text.
type RecordMetadata struct {
	Length    int `json:"length"`
	WordCount int `json:"word_count"`
}

// IndexRecord is the persisted unit in the vector index: one chunk with its
// embedding and the document fields needed to present a search hit.
type IndexRecord struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Title      string         `json:"title"`
	SourceURL  string         `json:"source_url"`
	Text       string         `json:"text"`
	Embedding  []float32      `json:"-"`
	IngestedAt time.Time      `json:"ingested_at"`
	Metadata   RecordMetadata `json:"metadata"`
}

// SearchResult is a single retrieval hit, scored by cosine similarity.
// The embedding vector is never returned to callers.
type SearchResult struct {
	Score      float64        `json:"score"`
	DocumentID string         `json:"document_id"`
	Title      string         `json:"title"`
	SourceURL  string         `json:"source_url"`
	Text       string         `json:"text"`
	IngestedAt time.Time      `json:"ingested_at"`
	Metadata   RecordMetadata `json:"metadata"`
}
