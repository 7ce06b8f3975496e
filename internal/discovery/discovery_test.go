package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpipe/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.SearchConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		MaxResults: 5,
	})
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, searchQuery, req.Query)
		assert.Equal(t, 5, req.MaxResults)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Warm minimalism", "content": "muted palettes everywhere", "url": "https://example.com/a"},
				{"title": "Retro revival", "content": "chrome text is back", "url": "https://example.com/b"},
			},
		})
	}))
	defer srv.Close()

	trends, err := newTestClient(srv.URL).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "Warm minimalism", trends[0].Title)
	assert.Equal(t, "https://example.com/a", trends[0].Source)
	assert.NotEmpty(t, trends[0].FetchedAt)
}

func TestDiscover_NoAPIKey(t *testing.T) {
	c := NewClient(config.SearchConfig{BaseURL: "http://unused"})
	_, err := c.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no search API key")
}

func TestDiscover_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestDiscover_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results")
}

func TestSampleTrends(t *testing.T) {
	trends := SampleTrends()
	require.NotEmpty(t, trends)
	for _, tr := range trends {
		assert.NotEmpty(t, tr.Title)
		assert.NotEmpty(t, tr.Content)
	}
}
