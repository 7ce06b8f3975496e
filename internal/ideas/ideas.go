// Package ideas synthesizes design ideas from discovered trends using an
// OpenAI-compatible chat completions API.
package ideas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/config"
	"trendpipe/internal/docstore"
)

const systemPrompt = `You are a senior print-on-demand art director. Given a list of current
design trends, propose distinct digital wall-art concepts that would sell well.
Respond with ONLY a JSON array, no prose. Each element must have exactly these
string fields: "title", "description", "style", "prompt". The "prompt" field is
a detailed image-generation prompt for the concept.`

// Client synthesizes ideas via a chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxIdeas   int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new synthesis client.
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxIdeas:   cfg.MaxIdeas,
	}
}

// Synthesize turns discovered trends into concrete design ideas. Failure here
// is fatal for the run: nothing downstream can exist without ideas.
func (c *Client) Synthesize(ctx context.Context, trends []docstore.Trend) ([]docstore.Idea, error) {
	if c.apiKey == "" {
		return nil, apperrors.External("llm.synthesize", fmt.Errorf("no LLM API key configured"))
	}

	content, err := c.chatCompletion(ctx, systemPrompt, userPrompt(trends, c.maxIdeas))
	if err != nil {
		return nil, err
	}

	ideas, err := parseIdeas(content)
	if err != nil {
		return nil, apperrors.External("llm.synthesize", err)
	}
	if len(ideas) > c.maxIdeas && c.maxIdeas > 0 {
		ideas = ideas[:c.maxIdeas]
	}
	return ideas, nil
}

func userPrompt(trends []docstore.Trend, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose %d concepts based on these trends:\n\n", count)
	for i, t := range trends {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, t.Title, t.Content)
	}
	return b.String()
}

func (c *Client) chatCompletion(ctx context.Context, system, user string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.8,
		MaxTokens:   2048,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", apperrors.Internal("llm.marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", apperrors.Internal("llm.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.External("llm.synthesize", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.External("llm.synthesize", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.External("llm.synthesize", fmt.Errorf("LLM API status %d: %s", resp.StatusCode, respBody))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", apperrors.External("llm.synthesize", fmt.Errorf("invalid response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return "", apperrors.External("llm.synthesize", fmt.Errorf("no choices in response"))
	}

	return chatResp.Choices[0].Message.Content, nil
}

// parseIdeas extracts the JSON idea array from a model response, tolerating
// markdown code fences and surrounding prose.
func parseIdeas(content string) ([]docstore.Idea, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	// Models occasionally wrap the array in prose; cut to the outermost array.
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model response")
	}

	var ideas []docstore.Idea
	if err := json.Unmarshal([]byte(content[start:end+1]), &ideas); err != nil {
		return nil, fmt.Errorf("malformed idea array: %w", err)
	}
	if len(ideas) == 0 {
		return nil, fmt.Errorf("model returned no ideas")
	}
	for i, idea := range ideas {
		if idea.Title == "" || idea.Prompt == "" {
			return nil, fmt.Errorf("idea %d missing title or prompt", i)
		}
	}
	return ideas, nil
}
