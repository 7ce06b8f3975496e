// Package market publishes generated artifacts as draft marketplace listings.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/config"
	"trendpipe/internal/docstore"
	"trendpipe/pkg/backoff"
)

const uploadRetries = 3

// MetricsRecorder is an optional interface for recording publish metrics.
type MetricsRecorder interface {
	RecordListingUploaded(ctx context.Context)
	RecordListingUploadFailed(ctx context.Context)
}

// Result reports the outcome of a publish run. Individual upload failures are
// counted, not escalated.
type Result struct {
	Uploaded int
	Failed   int
}

// Client uploads draft listings to an Etsy-style marketplace API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	refreshToken string
	shopID       string
	metrics      MetricsRecorder
	logger       *slog.Logger
}

// NewClient creates a new marketplace client.
func NewClient(cfg config.MarketConfig, metrics MetricsRecorder) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		refreshToken: cfg.RefreshToken,
		shopID:       cfg.ShopID,
		metrics:      metrics,
		logger:       slog.With("component", "publisher"),
	}
}

// Configured reports whether marketplace credentials are present. The publish
// stage is skipped entirely when they are not.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.refreshToken != "" && c.shopID != ""
}

// Publish uploads every image in the manifest as an independent draft
// listing. One artifact's failure never aborts the others. An error is
// returned only when no artifact could be uploaded at all.
func (c *Client) Publish(ctx context.Context, m *docstore.Manifest) (Result, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return Result{Failed: len(m.Images)}, err
	}

	var res Result
	for _, img := range m.Images {
		if err := c.uploadListing(ctx, token, img); err != nil {
			res.Failed++
			if c.metrics != nil {
				c.metrics.RecordListingUploadFailed(ctx)
			}
			c.logger.Warn("Listing upload failed", "imageId", img.ID, "error", err)
			continue
		}
		res.Uploaded++
		if c.metrics != nil {
			c.metrics.RecordListingUploaded(ctx)
		}
		c.logger.Info("Draft listing uploaded", "imageId", img.ID, "title", img.Title)
	}

	if res.Uploaded == 0 && len(m.Images) > 0 {
		return res, apperrors.External("market.publish", fmt.Errorf("all %d uploads failed", res.Failed))
	}
	return res, nil
}

// accessToken exchanges the refresh token for a short-lived access token.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.apiKey)
	form.Set("refresh_token", c.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/public/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperrors.Internal("market.token", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.External("market.token", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.External("market.token", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.External("market.token", fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, respBody))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return "", apperrors.External("market.token", fmt.Errorf("invalid token response"))
	}
	return tokenResp.AccessToken, nil
}

// uploadListing creates a draft listing and attaches the image file,
// retrying transient failures with exponential backoff.
func (c *Client) uploadListing(ctx context.Context, token string, img docstore.ImageAsset) error {
	var lastErr error
	for attempt := 0; attempt <= uploadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}

		listingID, err := c.createDraft(ctx, token, img)
		if err != nil {
			lastErr = err
			continue
		}
		if err := c.attachImage(ctx, token, listingID, img.ImagePath); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) createDraft(ctx context.Context, token string, img docstore.ImageAsset) (string, error) {
	payload := map[string]any{
		"title":       img.Title,
		"description": img.Description,
		"state":       "draft",
		"who_made":    "i_did",
		"when_made":   "2020_2026",
		"taxonomy_id": 2078, // digital prints
		"quantity":    999,
		"price":       4.99,
		"tags":        listingTags(img.Style),
		"type":        "download",
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/application/shops/%s/listings", c.baseURL, c.shopID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create listing status %d: %s", resp.StatusCode, respBody)
	}

	var listing struct {
		ListingID json.Number `json:"listing_id"`
	}
	if err := json.Unmarshal(respBody, &listing); err != nil || listing.ListingID.String() == "" {
		return "", fmt.Errorf("invalid listing response")
	}
	return listing.ListingID.String(), nil
}

func (c *Client) attachImage(ctx context.Context, token, listingID, imagePath string) error {
	file, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/application/shops/%s/listings/%s/images", c.baseURL, c.shopID, listingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("attach image status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func listingTags(style string) []string {
	tags := []string{"wall art", "digital download", "printable", "home decor"}
	if style != "" {
		tags = append(tags, style)
	}
	return tags
}
