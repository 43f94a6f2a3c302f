package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 60 * time.Second

// Config holds connection settings for an OpenAI-compatible embeddings
// endpoint. BaseURL, APIKey, and Model are required.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible embeddings endpoint
// (POST {base}/embeddings with bearer auth). The underlying HTTP client is
// reused across calls; the embedding dimension is discovered lazily from the
// first successful response and never re-queried.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	dims    int
}

// embeddingRequest is the OpenAI-compatible request body.
type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// embeddingResponse is the OpenAI-compatible response body.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient creates an embeddings client. Missing required settings are a
// configuration error, reported at construction rather than on first use.
func NewClient(cfg Config) (*Client, error) {
	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if cfg.Model == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("embedding service config missing: %v", missing)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ServiceError{Reason: "no embedding returned"}
	}
	return embeddings[0], nil
}

// EmbedBatch generates one embedding per input text, in input order, with a
// single request for the whole batch. An empty batch returns nil without a
// network call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, &ServiceError{Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, &ServiceError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Reason: "read response", Err: err}
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ServiceError{Reason: "decode response", Err: err}
	}
	if decoded.Error != nil {
		return nil, &ServiceError{Reason: decoded.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))}
	}
	if decoded.Data == nil {
		return nil, &ServiceError{Reason: "response missing data field"}
	}
	if len(decoded.Data) != len(texts) {
		return nil, &ServiceError{Reason: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(decoded.Data))}
	}

	embeddings := make([][]float32, len(texts))
	for i, item := range decoded.Data {
		if item.Embedding == nil {
			return nil, &ServiceError{Reason: "response item missing embedding"}
		}
		pos := item.Index
		if pos < 0 || pos >= len(embeddings) {
			pos = i
		}
		embeddings[pos] = item.Embedding
	}

	if c.dims == 0 && len(embeddings[0]) > 0 {
		c.dims = len(embeddings[0])
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size discovered from the first
// successful call, or 0 when no call has succeeded yet.
func (c *Client) Dimensions() int { return c.dims }

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string { return c.model }

var _ Embedder = (*Client)(nil)
