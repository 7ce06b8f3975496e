// Package discovery finds current design-trend content via an external
// search API.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/config"
	"trendpipe/internal/docstore"
)

// searchQuery drives the trend search. The pipeline runs daily, so the query
// targets whatever is current rather than a fixed season.
const searchQuery = "trending graphic design styles wall art poster trends"

// Client queries a Tavily-style search API for trend content.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxResults int
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results,omitempty"`
	SearchDepth string `json:"search_depth,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// NewClient creates a new search client.
func NewClient(cfg config.SearchConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
	}
}

// Discover searches for current design trends. Failures here are recoverable:
// the pipeline falls back to SampleTrends.
func (c *Client) Discover(ctx context.Context) ([]docstore.Trend, error) {
	if c.apiKey == "" {
		return nil, apperrors.External("search.query", fmt.Errorf("no search API key configured"))
	}

	reqBody := searchRequest{
		Query:       searchQuery,
		MaxResults:  c.maxResults,
		SearchDepth: "basic",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.Internal("search.marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, apperrors.Internal("search.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.External("search.query", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.External("search.query", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.External("search.query", fmt.Errorf("search API status %d: %s", resp.StatusCode, respBody))
	}

	var searchResp searchResponse
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return nil, apperrors.External("search.query", fmt.Errorf("invalid response: %w", err))
	}

	if len(searchResp.Results) == 0 {
		return nil, apperrors.External("search.query", fmt.Errorf("no results"))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	trends := make([]docstore.Trend, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		trends = append(trends, docstore.Trend{
			Title:     r.Title,
			Content:   r.Content,
			Source:    r.URL,
			FetchedAt: now,
		})
	}
	return trends, nil
}
