package images

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpipe/internal/config"
	"trendpipe/internal/docstore"
)

var testIdeas = []docstore.Idea{
	{Title: "Dawn Grid", Description: "warm geometric print", Style: "minimalist", Prompt: "a warm minimal grid poster"},
	{Title: "Neon Drive", Description: "retro skyline", Style: "retro", Prompt: "a neon retro skyline poster"},
}

// pngPayload is a fake image body; the client never inspects pixels.
var pngPayload = []byte("not-really-a-png")

func imageServer(t *testing.T, failPrompts map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req generationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b64_json", req.ResponseFormat)

		if failPrompts[req.Prompt] {
			http.Error(w, "content policy violation", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(pngPayload)},
			},
		})
	}))
}

func newTestClient(t *testing.T, baseURL string, maxImages int) *Client {
	t.Helper()
	return NewClient(config.ImagesConfig{
		APIKey:    "test-key",
		BaseURL:   baseURL,
		Model:     "test-model",
		Size:      "1024x1024",
		OutputDir: t.TempDir(),
		MaxImages: maxImages,
	})
}

func TestGenerate(t *testing.T) {
	srv := imageServer(t, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	manifest, err := c.Generate(context.Background(), "run-1", testIdeas)
	require.NoError(t, err)

	assert.Equal(t, "run-1", manifest.RunID)
	assert.NotEmpty(t, manifest.GeneratedAt)
	require.Len(t, manifest.Images, 2)

	first := manifest.Images[0]
	assert.Equal(t, "run-1-1", first.ID)
	assert.Equal(t, "Dawn Grid", first.Title)

	raw, err := os.ReadFile(first.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, pngPayload, raw)
}

func TestGenerate_PartialFailureTolerated(t *testing.T) {
	srv := imageServer(t, map[string]bool{testIdeas[0].Prompt: true})
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	manifest, err := c.Generate(context.Background(), "run-1", testIdeas)
	require.NoError(t, err)
	require.Len(t, manifest.Images, 1)
	assert.Equal(t, "Neon Drive", manifest.Images[0].Title)
}

func TestGenerate_AllFailuresFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	_, err := c.Generate(context.Background(), "run-1", testIdeas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestGenerate_RespectsMaxImages(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(pngPayload)},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	manifest, err := c.Generate(context.Background(), "run-1", testIdeas)
	require.NoError(t, err)
	assert.Len(t, manifest.Images, 1)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGenerate_NoAPIKey(t *testing.T) {
	c := NewClient(config.ImagesConfig{OutputDir: t.TempDir()})
	_, err := c.Generate(context.Background(), "run-1", testIdeas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image API key")
}
