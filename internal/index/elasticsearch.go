package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/hyperjump/ronbun/internal/models"
	"go.uber.org/zap"
)

// Config holds connection settings for the Elasticsearch store.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	CACert    []byte
}

// Store is an Elasticsearch-backed VectorIndex. The index schema is created
// lazily once the embedding dimension is known; all mutable state lives in
// Elasticsearch, so a Store is safe to reuse across sequential calls.
type Store struct {
	es     *elasticsearch.Client
	index  string
	dims   int
	ready  bool
	logger *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for debug events (index creation, deletions, etc.).
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store for the given cluster and index name.
func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		CACert:    cfg.CACert,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	s := &Store{es: es, index: cfg.Index}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// esDocument is the wire format of one persisted chunk.
type esDocument struct {
	PaperID    string     `json:"paper_id"`
	ChunkID    string     `json:"chunk_id"`
	PaperTitle string     `json:"paper_title"`
	PaperURL   string     `json:"paper_url"`
	Content    string     `json:"content"`
	SavedAt    string     `json:"saved_at"`
	Embedding  []float32  `json:"embedding,omitempty"`
	Metadata   esMetadata `json:"metadata"`
}

type esMetadata struct {
	Length    int `json:"length"`
	WordCount int `json:"word_count"`
}

// sourceFields is what searches return; the raw embedding never leaves the store.
var sourceFields = []string{"paper_id", "chunk_id", "paper_title", "paper_url", "content", "saved_at", "metadata"}

// EnsureSchema checks that the backing index exists and creates it with a
// dense_vector field of the given dimension when it does not. A racing
// creator observing "already exists" succeeds.
func (s *Store) EnsureSchema(ctx context.Context, dims int) error {
	if s.ready {
		return nil
	}
	if dims <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dims)
	}

	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		s.ready = true
		s.dims = dims
		return nil
	case http.StatusNotFound:
		// fall through to create
	default:
		return fmt.Errorf("index existence check failed: %s", res.String())
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"paper_id":    map[string]any{"type": "keyword"},
				"chunk_id":    map[string]any{"type": "keyword"},
				"paper_title": map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword"}}},
				"paper_url":   map[string]any{"type": "keyword"},
				"content":     map[string]any{"type": "text"},
				"saved_at":    map[string]any{"type": "date"},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
				"metadata": map[string]any{"type": "object"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	created, err := s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.index, err)
	}
	defer created.Body.Close()
	if created.IsError() {
		raw, _ := io.ReadAll(created.Body)
		// Another caller may have created the index between our existence
		// check and the create call; that is success, not failure.
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			s.ready = true
			s.dims = dims
			return nil
		}
		return fmt.Errorf("failed to create index %s: %s", s.index, string(raw))
	}

	if s.logger != nil {
		s.logger.Info("created index", zap.String("index", s.index), zap.Int("dims", dims))
	}
	s.ready = true
	s.dims = dims
	return nil
}

// Upsert writes each record under its chunk id. Dimension mismatches against
// the known schema are a configuration error and abort before any write.
func (s *Store) Upsert(ctx context.Context, records []models.IndexRecord) error {
	for _, rec := range records {
		if s.dims != 0 && len(rec.Embedding) != s.dims {
			return fmt.Errorf("embedding dimension mismatch for %s: got %d, index has %d", rec.ChunkID, len(rec.Embedding), s.dims)
		}
	}
	for _, rec := range records {
		doc := esDocument{
			PaperID:    rec.DocumentID,
			ChunkID:    rec.ChunkID,
			PaperTitle: rec.Title,
			PaperURL:   rec.SourceURL,
			Content:    rec.Text,
			SavedAt:    rec.IngestedAt.UTC().Format(time.RFC3339),
			Embedding:  rec.Embedding,
			Metadata:   esMetadata{Length: rec.Metadata.Length, WordCount: rec.Metadata.WordCount},
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ChunkID, err)
		}
		res, err := s.es.Index(s.index, bytes.NewReader(body),
			s.es.Index.WithDocumentID(rec.ChunkID),
			s.es.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("failed to write record %s: %w", rec.ChunkID, err)
		}
		if res.IsError() {
			msg := res.String()
			res.Body.Close()
			return fmt.Errorf("failed to write record %s: %s", rec.ChunkID, msg)
		}
		res.Body.Close()
	}
	return nil
}

// DeleteByDocumentID removes all records whose paper_id matches. A 404 on the
// index means there is nothing to delete.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"paper_id": documentID},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}
	res, err := s.es.DeleteByQuery([]string{s.index}, bytes.NewReader(body),
		s.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		if s.logger != nil {
			s.logger.Debug("delete on missing index", zap.String("index", s.index))
		}
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete document %s: %s", documentID, res.String())
	}
	if s.logger != nil {
		s.logger.Debug("deleted document records", zap.String("document_id", documentID))
	}
	return nil
}

// esSearchResponse is the subset of the search reply we consume.
type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a KNN query over the embedding field and returns ranked
// results. The candidate pool is widened to NumCandidates(k) so the
// approximate search has enough breadth for an accurate top k.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	query := map[string]any{
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": NumCandidates(k),
		},
		"size":    k,
		"_source": map[string]any{"includes": sourceFields},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		// Nothing has been ingested yet; an empty index is not a failure.
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var decoded esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(decoded.Hits.Hits))
	for _, hit := range decoded.Hits.Hits {
		ingestedAt, _ := time.Parse(time.RFC3339, hit.Source.SavedAt)
		results = append(results, models.SearchResult{
			Score:      hit.Score,
			DocumentID: hit.Source.PaperID,
			Title:      hit.Source.PaperTitle,
			SourceURL:  hit.Source.PaperURL,
			Text:       hit.Source.Content,
			IngestedAt: ingestedAt,
			Metadata: models.RecordMetadata{
				Length:    hit.Source.Metadata.Length,
				WordCount: hit.Source.Metadata.WordCount,
			},
		})
	}
	return results, nil
}

var _ VectorIndex = (*Store)(nil)
