// Package config provides configuration loading and structs for the Ronbun server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Chunking      ChunkingConfig      `yaml:"chunking"`
	Search        SearchConfig        `yaml:"search"`
	Watch         WatchConfig         `yaml:"watch"`
	Arxiv         ArxivConfig         `yaml:"arxiv"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbeddingConfig holds embedding API settings. The API key is never stored
// in the file; APIKeyEnv names the environment variable that carries it.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// APIKey resolves the API key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// Timeout returns the request timeout as a duration.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// ElasticsearchConfig holds vector store connection settings.
type ElasticsearchConfig struct {
	Addresses  []string `yaml:"addresses"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Index      string   `yaml:"index"`
	CACertPath string   `yaml:"ca_cert_path"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ArxivConfig holds arXiv API settings.
type ArxivConfig struct {
	BaseURL     string `yaml:"base_url"`
	MaxResults  int    `yaml:"max_results"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Timeout returns the request timeout as a duration.
func (a *ArxivConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if cfg.Elasticsearch.CACertPath != "" {
		cfg.Elasticsearch.CACertPath = expandPath(cfg.Elasticsearch.CACertPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that make the config unusable. Collects every
// problem so the operator can fix them all in one pass.
func (c *Config) Validate() error {
	var problems []string
	if c.Embedding.BaseURL == "" {
		problems = append(problems, "embedding.base_url is empty")
	}
	if c.Embedding.Model == "" {
		problems = append(problems, "embedding.model is empty")
	}
	if c.Embedding.APIKey() == "" {
		problems = append(problems, fmt.Sprintf("environment variable %s is not set", c.Embedding.APIKeyEnv))
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		problems = append(problems, "elasticsearch.addresses is empty")
	}
	if c.Elasticsearch.Index == "" {
		problems = append(problems, "elasticsearch.index is empty")
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		problems = append(problems, "chunking.chunk_overlap must be smaller than chunking.chunk_size")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
