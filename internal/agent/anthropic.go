package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicURL     = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	// Messages API requires max_tokens
	anthropicDefaultMaxTokens = 4096
)

// AnthropicClient implements Agent for the Anthropic Messages API.
type AnthropicClient struct {
	BaseClient
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// NewAnthropicClient creates a new Anthropic client. baseURL defaults to the
// public API.
func NewAnthropicClient(apiKey, model, baseURL string) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicURL
	}
	return &AnthropicClient{
		BaseClient: NewBaseClient("anthropic"),
		apiKey:     apiKey,
		model:      model,
		apiURL:     strings.TrimRight(baseURL, "/") + "/v1/messages",
		httpClient: newHTTPClient(),
	}
}

// WithMockResponder sets a mock responder for testing
func (c *AnthropicClient) WithMockResponder(fn func(Request) (string, error)) *AnthropicClient {
	c.mockResponder = fn
	return c
}

// Analyze implements Agent.
func (c *AnthropicClient) Analyze(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.SendWithRetry(ctx, Request{System: systemPrompt, User: userPrompt, MaxTokens: maxTokens}, c.sendOnce)
}

func (c *AnthropicClient) sendOnce(ctx context.Context, r Request) (string, error) {
	if c.apiKey == "" {
		return "", errMissingAPIKey
	}
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	body := map[string]any{
		"model":       c.model,
		"max_tokens":  maxTokens,
		"system":      r.System,
		"temperature": 0,
		"messages": []chatMessage{
			{Role: "user", Content: r.User},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := postJSON(ctx, c.httpClient, c.Provider, c.apiURL, headers, body, &response); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no content in response (stop_reason=%s)", response.StopReason)
	}
	return sb.String(), nil
}
