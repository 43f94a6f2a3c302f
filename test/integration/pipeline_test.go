// Package integration exercises the full ingest and query pipeline against a
// fake Elasticsearch server, with only the embedding model mocked out.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/ronbun/internal/chunker"
	"github.com/hyperjump/ronbun/internal/docid"
	"github.com/hyperjump/ronbun/internal/embedding"
	"github.com/hyperjump/ronbun/internal/index"
	"github.com/hyperjump/ronbun/internal/knowledge"
	"github.com/hyperjump/ronbun/internal/models"
	"github.com/hyperjump/ronbun/pkg/utils"
)

// fakeElastic emulates the handful of Elasticsearch endpoints the store
// uses: index existence, creation, document writes, delete-by-query, and KNN
// search ranked by cosine similarity over the stored embeddings.
type fakeElastic struct {
	mu     sync.Mutex
	exists bool
	docs   map[string]map[string]any
}

func newFakeElastic() *fakeElastic {
	return &fakeElastic{docs: make(map[string]map[string]any)}
}

func (f *fakeElastic) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The v8 client refuses to talk to servers missing the product header.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodHead:
			if f.exists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut && !strings.Contains(r.URL.Path, "/_doc/"):
			f.exists = true
			json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
		case r.Method == http.MethodPut:
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			var doc map[string]any
			json.NewDecoder(r.Body).Decode(&doc)
			f.docs[id] = doc
			json.NewEncoder(w).Encode(map[string]any{"result": "created"})
		case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
			var body struct {
				Query struct {
					Term map[string]string `json:"term"`
				} `json:"query"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			paperID := body.Query.Term["paper_id"]
			deleted := 0
			for id, doc := range f.docs {
				if doc["paper_id"] == paperID {
					delete(f.docs, id)
					deleted++
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"deleted": deleted})
		case strings.HasSuffix(r.URL.Path, "/_search"):
			var body struct {
				Knn struct {
					QueryVector []float32 `json:"query_vector"`
					K           int       `json:"k"`
				} `json:"knn"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			type hit struct {
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			}
			hits := make([]hit, 0, len(f.docs))
			for _, doc := range f.docs {
				raw, _ := doc["embedding"].([]any)
				vec := make([]float32, len(raw))
				for i, v := range raw {
					n, _ := v.(float64)
					vec[i] = float32(n)
				}
				source := make(map[string]any, len(doc))
				for k, v := range doc {
					if k != "embedding" {
						source[k] = v
					}
				}
				// Elasticsearch maps cosine similarity into [0, 1].
				hits = append(hits, hit{
					Score:  (1 + utils.CosineSimilarity(body.Knn.QueryVector, vec)) / 2,
					Source: source,
				})
			}
			sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
			if len(hits) > body.Knn.K {
				hits = hits[:body.Knn.K]
			}
			json.NewEncoder(w).Encode(map[string]any{
				"hits": map[string]any{"hits": hits},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func newPipeline(t *testing.T) (*knowledge.KnowledgeBase, *fakeElastic) {
	t.Helper()
	fake := newFakeElastic()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store, err := index.NewStore(index.Config{
		Addresses: []string{srv.URL},
		Index:     "papers",
	})
	if err != nil {
		t.Fatal(err)
	}
	splitter := chunker.NewSplitter(80, 20, nil)
	kb := knowledge.New(splitter, embedding.NewMockEmbedder(16), store)
	return kb, fake
}

func TestPipeline_IngestThenQuery(t *testing.T) {
	kb, fake := newPipeline(t)
	ctx := context.Background()

	docs := []models.Document{
		{
			Title:     "Attention Is All You Need",
			SourceURL: "http://arxiv.org/abs/1706.03762",
			RawText:   "The transformer architecture relies entirely on attention mechanisms.",
		},
		{
			Title:     "Deep Residual Learning",
			SourceURL: "http://arxiv.org/abs/1512.03385",
			RawText:   "Residual connections ease the training of very deep networks.",
		},
	}
	for _, doc := range docs {
		if err := kb.Ingest(ctx, doc); err != nil {
			t.Fatalf("Ingest error: %v", err)
		}
	}
	if len(fake.docs) != 2 {
		t.Fatalf("stored %d chunks, want 2", len(fake.docs))
	}

	results, err := kb.Query(ctx, "The transformer architecture relies entirely on attention mechanisms.", 2, 0)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Attention Is All You Need" {
		t.Errorf("top result = %q, want the exact-text match", results[0].Title)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not in descending score order")
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %f outside the normalized [0, 1] range", r.Score)
		}
	}
	if results[0].SourceURL != "http://arxiv.org/abs/1706.03762" {
		t.Errorf("source url = %q", results[0].SourceURL)
	}
	if results[0].Metadata.WordCount == 0 {
		t.Error("metadata word count should be recorded")
	}
}

func TestPipeline_ReingestReplacesChunks(t *testing.T) {
	kb, fake := newPipeline(t)
	ctx := context.Background()

	long := strings.Repeat("first version of the paper body. ", 10)
	doc := models.Document{SourceURL: "http://arxiv.org/abs/1", RawText: long}
	if err := kb.Ingest(ctx, doc); err != nil {
		t.Fatal(err)
	}
	before := len(fake.docs)
	if before < 2 {
		t.Fatalf("expected several chunks, got %d", before)
	}

	doc.RawText = "revised and much shorter"
	if err := kb.Ingest(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if len(fake.docs) != 1 {
		t.Errorf("after shrinking re-ingest: %d chunks, want 1", len(fake.docs))
	}
	wantID := docid.Derive("http://arxiv.org/abs/1", "", "") + "-0001"
	if _, ok := fake.docs[wantID]; !ok {
		t.Errorf("missing chunk %s", wantID)
	}
}

func TestPipeline_ForgetRemovesOnlyTargetPaper(t *testing.T) {
	kb, fake := newPipeline(t)
	ctx := context.Background()

	a := models.Document{SourceURL: "http://arxiv.org/abs/a", RawText: "paper a text"}
	b := models.Document{SourceURL: "http://arxiv.org/abs/b", RawText: "paper b text"}
	if err := kb.Ingest(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := kb.Ingest(ctx, b); err != nil {
		t.Fatal(err)
	}

	if err := kb.Forget(ctx, docid.Derive("http://arxiv.org/abs/a", "", "")); err != nil {
		t.Fatal(err)
	}
	if len(fake.docs) != 1 {
		t.Fatalf("got %d chunks, want 1", len(fake.docs))
	}
	results, err := kb.Query(ctx, "paper b text", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Text != "paper b text" {
		t.Errorf("results = %+v", results)
	}
}
