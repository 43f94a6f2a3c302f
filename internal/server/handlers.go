package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/ronbun/internal/docid"
	"github.com/hyperjump/ronbun/internal/models"
	"go.uber.org/zap"
)

func (s *Server) handleIngestPaper(w http.ResponseWriter, r *http.Request) {
	var input models.PaperInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	id := input.ID
	if id == "" {
		id = docid.Derive(input.SourceURL, "", input.Title)
	}
	s.logger.Debug("ingest paper request", zap.String("id", id), zap.String("title", input.Title))
	doc := models.Document{
		ID:        id,
		Title:     input.Title,
		SourceURL: input.SourceURL,
		RawText:   input.Text,
	}
	if err := s.kb.Ingest(r.Context(), doc); err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "ingested"})
}

func (s *Server) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete paper request", zap.String("id", id))
	if err := s.kb.Forget(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	topK := query.TopK
	if topK <= 0 {
		topK = s.config.Search.TopK
	}
	minScore := s.config.Search.MinScore
	if query.MinScore != nil {
		minScore = *query.MinScore
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", topK))
	results, err := s.kb.Query(r.Context(), query.Query, topK, minScore)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Query:   query.Query,
		Results: results,
		Count:   len(results),
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		s.respondError(w, http.StatusNotImplemented, "fetch not enabled")
		return
	}
	var req models.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("fetch request", zap.String("query", req.Query), zap.Bool("ingest", req.Ingest))
	papers, err := s.fetcher.Search(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		s.logger.Error("fetch failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	ingested := 0
	if req.Ingest {
		for _, p := range papers {
			if err := s.kb.Ingest(r.Context(), p.Document()); err != nil {
				s.logger.Error("ingest of fetched paper failed",
					zap.String("url", p.URL), zap.Error(err))
				s.respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			ingested++
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"papers":   papers,
		"count":    len(papers),
		"ingested": ingested,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"config": map[string]interface{}{
			"embedding_model": s.config.Embedding.Model,
			"index":           s.config.Elasticsearch.Index,
			"chunk_size":      s.config.Chunking.ChunkSize,
			"chunk_overlap":   s.config.Chunking.ChunkOverlap,
			"top_k":           s.config.Search.TopK,
			"min_score":       s.config.Search.MinScore,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
