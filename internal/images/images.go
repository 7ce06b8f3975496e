// Package images generates image artifacts from synthesized ideas via an
// OpenAI-style image generation API and writes them to disk.
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/config"
	"trendpipe/internal/docstore"
)

// Client generates images and assembles the run manifest.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	size       string
	outputDir  string
	maxImages  int
	logger     *slog.Logger
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// NewClient creates a new image generation client.
func NewClient(cfg config.ImagesConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		size:       cfg.Size,
		outputDir:  cfg.OutputDir,
		maxImages:  cfg.MaxImages,
		logger:     slog.With("component", "images"),
	}
}

// Generate renders one image per idea (bounded by the configured maximum) and
// returns a manifest tagged with the owning run's ID. Individual idea
// failures are tolerated; producing zero images is fatal.
func (c *Client) Generate(ctx context.Context, runID string, ideas []docstore.Idea) (*docstore.Manifest, error) {
	if c.apiKey == "" {
		return nil, apperrors.External("images.generate", fmt.Errorf("no image API key configured"))
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return nil, apperrors.Internal("images.mkdir", err)
	}

	if c.maxImages > 0 && len(ideas) > c.maxImages {
		ideas = ideas[:c.maxImages]
	}

	var assets []docstore.ImageAsset
	var lastErr error
	for i, idea := range ideas {
		id := fmt.Sprintf("%s-%d", runID, i+1)
		path, err := c.generateOne(ctx, id, idea.Prompt)
		if err != nil {
			lastErr = err
			c.logger.Warn("Image generation failed", "runId", runID, "idea", idea.Title, "error", err)
			continue
		}
		assets = append(assets, docstore.ImageAsset{
			ID:          id,
			Title:       idea.Title,
			Description: idea.Description,
			Style:       idea.Style,
			ImagePath:   path,
		})
	}

	if len(assets) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no ideas to render")
		}
		return nil, apperrors.External("images.generate", lastErr)
	}

	return &docstore.Manifest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		RunID:       runID,
		Images:      assets,
	}, nil
}

// generateOne renders a single prompt and writes the decoded PNG to disk.
func (c *Client) generateOne(ctx context.Context, id, prompt string) (string, error) {
	reqBody := generationRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: "b64_json",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image API status %d: %s", resp.StatusCode, respBody)
	}

	var genResp generationResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}
	if len(genResp.Data) == 0 {
		return "", fmt.Errorf("no image data in response")
	}

	raw, err := base64.StdEncoding.DecodeString(genResp.Data[0].B64JSON)
	if err != nil {
		return "", fmt.Errorf("invalid image payload: %w", err)
	}

	path := filepath.Join(c.outputDir, id+".png")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}

	c.logger.Info("Image written", "path", path, "bytes", len(raw))
	return path, nil
}
