// Package main is the Ronbun CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/ronbun/internal/arxiv"
	"github.com/hyperjump/ronbun/internal/chunker"
	"github.com/hyperjump/ronbun/internal/config"
	"github.com/hyperjump/ronbun/internal/docid"
	"github.com/hyperjump/ronbun/internal/embedding"
	"github.com/hyperjump/ronbun/internal/index"
	"github.com/hyperjump/ronbun/internal/knowledge"
	"github.com/hyperjump/ronbun/internal/models"
	"github.com/hyperjump/ronbun/internal/server"
	"github.com/hyperjump/ronbun/internal/watcher"
	"github.com/hyperjump/ronbun/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ronbun/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// components holds the wired application dependencies.
type components struct {
	KB      *knowledge.KnowledgeBase
	Fetcher *arxiv.Client
	Config  *config.Config
	Logger  *zap.Logger
}

// initializeComponents builds the embedding client, vector store, and
// knowledge base from config. Construction fails fast on unusable settings.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey(),
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	var caCert []byte
	if cfg.Elasticsearch.CACertPath != "" {
		caCert, err = os.ReadFile(cfg.Elasticsearch.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca certificate: %w", err)
		}
	}
	store, err := index.NewStore(index.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Index:     cfg.Elasticsearch.Index,
		CACert:    caCert,
	}, index.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	splitter := chunker.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, nil)
	kb := knowledge.New(splitter, embedder, store, knowledge.WithLogger(logger))

	fetcher := arxiv.NewClient(arxiv.Config{
		BaseURL:    cfg.Arxiv.BaseURL,
		MaxResults: cfg.Arxiv.MaxResults,
		Timeout:    cfg.Arxiv.Timeout(),
	}, arxiv.WithLogger(logger))

	return &components{KB: kb, Fetcher: fetcher, Config: cfg, Logger: logger}, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "fetch":
		runFetch()
	case "forget":
		runForget()
	case "version", "--version", "-v":
		fmt.Printf("ronbun version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func setup(configPath string, debug bool) (*components, func()) {
	cfg, resolvedPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolvedPath))

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return comps, func() { _ = logger.Sync() }
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	comps, cleanup := setup(*configPath, *debug)
	defer cleanup()
	cfg, logger := comps.Config, comps.Logger

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		watchSvc := watcher.NewWatcher(
			comps.KB,
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		go watchSvc.SyncExistingFiles(watchCtx)
	}

	srv := server.NewServer(comps.KB, comps.Fetcher, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	title := fs.String("title", "", "paper title (defaults to the file name)")
	sourceURL := fs.String("url", "", "source URL anchoring the paper identity")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ronbun ingest [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}

	comps, cleanup := setup(*configPath, false)
	defer cleanup()

	docTitle := *title
	if docTitle == "" {
		base := filepath.Base(path)
		docTitle = strings.TrimSuffix(base, filepath.Ext(base))
	}
	doc := models.Document{
		ID:        docid.Derive(*sourceURL, path, docTitle),
		Title:     docTitle,
		SourceURL: *sourceURL,
		Path:      path,
		RawText:   string(data),
	}
	if err := comps.KB.Ingest(context.Background(), doc); err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %s as %s\n", path, doc.ID)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	minScore := fs.Float64("min-score", -1, "minimum similarity score (negative = config default)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ronbun search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))

	comps, cleanup := setup(*configPath, false)
	defer cleanup()

	k := *topK
	if k <= 0 {
		k = comps.Config.Search.TopK
	}
	min := *minScore
	if min < 0 {
		min = comps.Config.Search.MinScore
	}
	results, err := comps.KB.Query(context.Background(), query, k, min)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.4f] %s\n", i+1, r.Score, r.Title)
		if r.SourceURL != "" {
			fmt.Printf("   %s\n", r.SourceURL)
		}
		fmt.Printf("   %s\n", utils.Truncate(r.Text, 200))
	}
}

func runFetch() {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	maxResults := fs.Int("max-results", 0, "number of papers to fetch (0 = config default)")
	ingest := fs.Bool("ingest", false, "ingest fetched abstracts into the knowledge base")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ronbun fetch [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))

	comps, cleanup := setup(*configPath, false)
	defer cleanup()

	papers, err := comps.Fetcher.Search(context.Background(), query, *maxResults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		os.Exit(1)
	}
	for i, p := range papers {
		fmt.Printf("%d. %s\n", i+1, p.Title)
		fmt.Printf("   %s\n", p.URL)
		if *ingest {
			if err := comps.KB.Ingest(context.Background(), p.Document()); err != nil {
				fmt.Fprintf(os.Stderr, "Ingest of %s failed: %v\n", p.URL, err)
				os.Exit(1)
			}
		}
	}
	if *ingest {
		fmt.Printf("Ingested %d papers.\n", len(papers))
	}
}

func runForget() {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	byURL := fs.String("url", "", "forget by source URL instead of document id")
	_ = fs.Parse(os.Args[2:])

	var id string
	switch {
	case *byURL != "":
		id = docid.Derive(*byURL, "", "")
	case fs.NArg() >= 1:
		id = fs.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "Usage: ronbun forget [flags] <document-id>")
		os.Exit(1)
	}

	comps, cleanup := setup(*configPath, false)
	defer cleanup()

	if err := comps.KB.Forget(context.Background(), id); err != nil {
		fmt.Fprintf(os.Stderr, "Forget failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Forgot %s\n", id)
}

func printUsage() {
	fmt.Println(`ronbun - research paper knowledge base

Usage:
  ronbun server [flags]              Start the HTTP API server
  ronbun ingest [flags] <file>       Ingest a paper from a text file
  ronbun search [flags] <query>      Semantic search over ingested papers
  ronbun fetch [flags] <query>       Fetch papers from arXiv (optionally ingest)
  ronbun forget [flags] <id>         Remove a paper from the knowledge base
  ronbun version                     Print version
  ronbun help                        Show this help

Flags (all commands):
  -config <path>   Config file path (default ` + defaultConfigPath + `,
                   falling back to ./config.yaml when present)`)
}
