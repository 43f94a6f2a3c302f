package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/ronbun/internal/arxiv"
	"github.com/hyperjump/ronbun/internal/config"
	"github.com/hyperjump/ronbun/internal/docid"
	"github.com/hyperjump/ronbun/internal/models"
	"go.uber.org/zap"
)

type mockKnowledge struct {
	ingested  []models.Document
	forgotten []string
	results   []models.SearchResult
	queries   []string
	minScores []float64
	err       error
}

func (m *mockKnowledge) Ingest(ctx context.Context, doc models.Document) error {
	if m.err != nil {
		return m.err
	}
	m.ingested = append(m.ingested, doc)
	return nil
}

func (m *mockKnowledge) Query(ctx context.Context, text string, topK int, minScore float64) ([]models.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.queries = append(m.queries, text)
	m.minScores = append(m.minScores, minScore)
	return m.results, nil
}

func (m *mockKnowledge) Forget(ctx context.Context, documentID string) error {
	if m.err != nil {
		return m.err
	}
	m.forgotten = append(m.forgotten, documentID)
	return nil
}

type mockFetcher struct {
	papers []arxiv.Paper
	err    error
}

func (m *mockFetcher) Search(ctx context.Context, query string, maxResults int) ([]arxiv.Paper, error) {
	return m.papers, m.err
}

func newTestServer(kb Knowledge, fetcher Fetcher) *Server {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewServer(kb, fetcher, cfg, zap.NewNop())
}

func TestHandleIngestPaper(t *testing.T) {
	kb := &mockKnowledge{}
	srv := newTestServer(kb, nil)

	body, _ := json.Marshal(models.PaperInput{
		Title:     "Attention Is All You Need",
		SourceURL: "http://arxiv.org/abs/1706.03762",
		Text:      "some paper text",
	})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/papers", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleIngestPaper(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status: got %d, want 201", w.Code)
	}
	if len(kb.ingested) != 1 {
		t.Fatalf("ingested: got %d documents", len(kb.ingested))
	}
	wantID := docid.Derive("http://arxiv.org/abs/1706.03762", "", "")
	if kb.ingested[0].ID != wantID {
		t.Errorf("document id = %s, want %s", kb.ingested[0].ID, wantID)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["id"] != wantID || out["status"] != "ingested" {
		t.Errorf("response: got %v", out)
	}
}

func TestHandleIngestPaper_MissingText(t *testing.T) {
	kb := &mockKnowledge{}
	srv := newTestServer(kb, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/papers", bytes.NewReader([]byte(`{"title":"x"}`)))
	w := httptest.NewRecorder()
	srv.handleIngestPaper(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if len(kb.ingested) != 0 {
		t.Error("nothing should be ingested on bad request")
	}
}

func TestHandleIngestPaper_InvalidBody(t *testing.T) {
	srv := newTestServer(&mockKnowledge{}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/papers", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	srv.handleIngestPaper(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleDeletePaper(t *testing.T) {
	kb := &mockKnowledge{}
	srv := newTestServer(kb, nil)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/papers/abc123", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "abc123")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	srv.handleDeletePaper(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(kb.forgotten) != 1 || kb.forgotten[0] != "abc123" {
		t.Errorf("forgotten: got %v", kb.forgotten)
	}
}

func TestHandleSearch(t *testing.T) {
	kb := &mockKnowledge{results: []models.SearchResult{
		{Score: 0.9, DocumentID: "doc1", Text: "hit"},
	}}
	srv := newTestServer(kb, nil)

	body, _ := json.Marshal(models.SearchQuery{Query: "transformers"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || len(out.Results) != 1 {
		t.Errorf("response: %+v", out)
	}
	if out.Results[0].DocumentID != "doc1" {
		t.Errorf("result: %+v", out.Results[0])
	}
}

func TestHandleSearch_EmptyResultsIsArray(t *testing.T) {
	srv := newTestServer(&mockKnowledge{}, nil)

	body, _ := json.Marshal(models.SearchQuery{Query: "nothing matches"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if body := w.Body.String(); !bytes.Contains([]byte(body), []byte(`"results":[]`)) {
		t.Errorf("empty results should encode as [], got: %s", body)
	}
}

func TestHandleSearch_MinScoreDefaultAndExplicitZero(t *testing.T) {
	kb := &mockKnowledge{}
	srv := newTestServer(kb, nil)
	srv.config.Search.MinScore = 0.5

	// Absent min_score uses the configured default.
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(`{"query":"q"}`)))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}

	// Explicit zero disables filtering despite the configured default.
	r = httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(`{"query":"q","min_score":0}`)))
	w = httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}

	if len(kb.minScores) != 2 {
		t.Fatalf("recorded %d min scores", len(kb.minScores))
	}
	if kb.minScores[0] != 0.5 {
		t.Errorf("absent min_score = %f, want config default 0.5", kb.minScores[0])
	}
	if kb.minScores[1] != 0 {
		t.Errorf("explicit zero min_score = %f, want 0", kb.minScores[1])
	}
}

func TestHandleSearch_KnowledgeError(t *testing.T) {
	kb := &mockKnowledge{err: errors.New("index down")}
	srv := newTestServer(kb, nil)

	body, _ := json.Marshal(models.SearchQuery{Query: "q"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", w.Code)
	}
}

func TestHandleFetch_IngestsPapers(t *testing.T) {
	kb := &mockKnowledge{}
	fetcher := &mockFetcher{papers: []arxiv.Paper{
		{Title: "Paper One", Summary: "abstract one", URL: "http://arxiv.org/abs/1"},
		{Title: "Paper Two", Summary: "abstract two", URL: "http://arxiv.org/abs/2"},
	}}
	srv := newTestServer(kb, fetcher)

	body, _ := json.Marshal(models.FetchRequest{Query: "attention", Ingest: true})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleFetch(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(kb.ingested) != 2 {
		t.Errorf("ingested: got %d documents, want 2", len(kb.ingested))
	}
	var out struct {
		Count    int `json:"count"`
		Ingested int `json:"ingested"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 || out.Ingested != 2 {
		t.Errorf("response: %+v", out)
	}
}

func TestHandleFetch_WithoutIngest(t *testing.T) {
	kb := &mockKnowledge{}
	fetcher := &mockFetcher{papers: []arxiv.Paper{{Title: "Paper", URL: "http://arxiv.org/abs/1"}}}
	srv := newTestServer(kb, fetcher)

	body, _ := json.Marshal(models.FetchRequest{Query: "attention"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleFetch(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(kb.ingested) != 0 {
		t.Errorf("nothing should be ingested, got %d", len(kb.ingested))
	}
}

func TestHandleFetch_NotEnabled(t *testing.T) {
	srv := newTestServer(&mockKnowledge{}, nil)

	body, _ := json.Marshal(models.FetchRequest{Query: "attention"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleFetch(w, r)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleFetch_UpstreamError(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("arxiv unavailable")}
	srv := newTestServer(&mockKnowledge{}, fetcher)

	body, _ := json.Marshal(models.FetchRequest{Query: "attention"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleFetch(w, r)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&mockKnowledge{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(&mockKnowledge{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Config struct {
			Index     string `json:"index"`
			ChunkSize int    `json:"chunk_size"`
		} `json:"config"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Config.Index != "papers" || out.Config.ChunkSize != 1000 {
		t.Errorf("status config: %+v", out.Config)
	}
}
