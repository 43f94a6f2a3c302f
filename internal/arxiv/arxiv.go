// Package arxiv fetches paper metadata from the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hyperjump/ronbun/internal/docid"
	"github.com/hyperjump/ronbun/internal/models"
	"github.com/hyperjump/ronbun/internal/retry"
	"github.com/hyperjump/ronbun/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "http://export.arxiv.org/api"
	DefaultMaxResults = 10
	DefaultTimeout    = 30 * time.Second
)

// Paper is one result from an arXiv query.
type Paper struct {
	ID        string
	Title     string
	Summary   string
	URL       string
	PDFURL    string
	Published time.Time
	Authors   []string
}

// Document converts the paper into an ingestable document. The abstract is
// the indexed text; the arXiv abstract page URL anchors the identity.
func (p Paper) Document() models.Document {
	return models.Document{
		ID:        docid.Derive(p.URL, "", p.Title),
		Title:     p.Title,
		SourceURL: p.URL,
		RawText:   p.Title + "\n\n" + p.Summary,
	}
}

// Config holds the arXiv client settings.
type Config struct {
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

// Client queries the arXiv Atom API with retries on transient failures.
type Client struct {
	baseURL    string
	maxResults int
	client     *http.Client
	retry      retry.Policy
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a logger for request events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryPolicy overrides the retry policy for transient API failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient creates an arXiv API client. Zero config fields select defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		client:     &http.Client{Timeout: cfg.Timeout},
		retry:      retry.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Atom feed shapes, reduced to the fields we consume.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

// Search queries arXiv across all fields and returns up to maxResults papers
// sorted by relevance. A maxResults of zero falls back to the configured
// default. Rate limiting and server errors are retried; other client errors
// fail immediately.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "relevance")
	reqURL := c.baseURL + "/query?" + params.Encode()

	var body []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		res, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to query arxiv: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			err := fmt.Errorf("arxiv returned status %d", res.StatusCode)
			if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse atom feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		papers = append(papers, entryToPaper(entry))
	}
	if c.logger != nil {
		c.logger.Debug("arxiv query answered",
			zap.String("query", utils.Truncate(query, 80)),
			zap.Int("papers", len(papers)))
	}
	return papers, nil
}

// entryToPaper normalizes a feed entry. arXiv wraps titles and abstracts
// across lines, so whitespace runs are collapsed.
func entryToPaper(entry atomEntry) Paper {
	p := Paper{
		ID:      entry.ID,
		Title:   utils.CollapseWhitespace(entry.Title),
		Summary: utils.CollapseWhitespace(entry.Summary),
		URL:     entry.ID,
	}
	if ts, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		p.Published = ts
	}
	for _, a := range entry.Authors {
		p.Authors = append(p.Authors, a.Name)
	}
	for _, l := range entry.Links {
		if l.Title == "pdf" {
			p.PDFURL = l.Href
		}
	}
	return p
}
