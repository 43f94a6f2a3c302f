// Package server provides the HTTP API for Ronbun.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ronbun/internal/arxiv"
	"github.com/hyperjump/ronbun/internal/config"
	"github.com/hyperjump/ronbun/internal/models"
	"go.uber.org/zap"
)

// Knowledge is the subset of knowledge base operations the API exposes.
type Knowledge interface {
	Ingest(ctx context.Context, doc models.Document) error
	Query(ctx context.Context, text string, topK int, minScore float64) ([]models.SearchResult, error)
	Forget(ctx context.Context, documentID string) error
}

// Fetcher queries an external paper source.
type Fetcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]arxiv.Paper, error)
}

// Server is the HTTP server for the Ronbun API.
type Server struct {
	kb      Knowledge
	fetcher Fetcher
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. The fetcher may be
// nil, in which case the fetch endpoint reports not implemented.
func NewServer(kb Knowledge, fetcher Fetcher, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		kb:      kb,
		fetcher: fetcher,
		config:  cfg,
		logger:  logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/papers", s.handleIngestPaper)
	r.Delete("/api/v1/papers/{id}", s.handleDeletePaper)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/fetch", s.handleFetch)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
