// Package webhook provides signed lifecycle-event delivery over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is a job lifecycle event posted to a configured webhook URL.
type Event struct {
	Type    string         `json:"type"`    // e.g. "pipeline.job.completed"
	Source  string         `json:"source"`  // emitting component
	Subject string         `json:"subject"` // job ID
	ID      string         `json:"id"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data"`
}

// New creates an Event with the current UTC timestamp.
func New(eventType, source, subject string, data map[string]any) *Event {
	return &Event{
		Type:    eventType,
		Source:  source,
		Subject: subject,
		ID:      fmt.Sprintf("%s-%d", subject, time.Now().UnixNano()),
		Time:    time.Now().UTC(),
		Data:    data,
	}
}

// Sender delivers events over HTTP.
type Sender struct {
	client *http.Client
}

// NewSender creates a Sender with standard transport settings.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Send delivers an event via HTTP POST. If signingKey is non-empty the body
// is HMAC-SHA256 signed and the signature sent in X-Signature-256.
func (s *Sender) Send(ctx context.Context, url string, event *Event, signingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", event.Type)
	req.Header.Set("X-Event-Id", event.ID)
	if signingKey != "" {
		req.Header.Set("X-Signature-256", Sign(body, signingKey))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPError{StatusCode: resp.StatusCode}
}

// Sign computes the HMAC-SHA256 signature header value for a payload.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx errors (shouldn't retry).
func IsClientError(err error) bool {
	if he, ok := err.(*HTTPError); ok {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
