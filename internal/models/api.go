package models

// PaperInput is the ingest request body.
type PaperInput struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Text      string `json:"text"`
}

// SearchQuery is the search request body. MinScore is a pointer so that an
// explicit zero (no filtering) is distinguishable from an absent field, which
// selects the configured default.
type SearchQuery struct {
	Query    string   `json:"query"`
	TopK     int      `json:"top_k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// SearchResponse is the search response body.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// FetchRequest is the arXiv fetch request body. When Ingest is true, every
// fetched paper is chunked and indexed.
type FetchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Ingest     bool   `json:"ingest,omitempty"`
}
