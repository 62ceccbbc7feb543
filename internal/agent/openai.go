package agent

import (
	"context"
	"net/http"
	"strings"
)

// OpenAIClient implements Agent for OpenAI chat completions.
type OpenAIClient struct {
	BaseClient
	apiKey     string
	model      string
	httpClient *http.Client
	apiURL     string
}

// NewOpenAIClient creates a new OpenAI client. baseURL may point at any
// OpenAI-compatible server.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		BaseClient: NewBaseClient("openai"),
		apiKey:     apiKey,
		model:      model,
		httpClient: newHTTPClient(),
		apiURL:     strings.TrimRight(baseURL, "/") + "/chat/completions",
	}
}

// WithMockResponder sets a mock responder for testing
func (c *OpenAIClient) WithMockResponder(fn func(Request) (string, error)) *OpenAIClient {
	c.mockResponder = fn
	return c
}

// Analyze implements Agent.
func (c *OpenAIClient) Analyze(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.SendWithRetry(ctx, Request{System: systemPrompt, User: userPrompt, MaxTokens: maxTokens}, c.sendOnce)
}

func (c *OpenAIClient) sendOnce(ctx context.Context, r Request) (string, error) {
	return sendChatOnce(ctx, chatConfig{
		Provider:   c.Provider,
		APIKey:     c.apiKey,
		Model:      c.model,
		APIURL:     c.apiURL,
		HTTPClient: c.httpClient,
	}, r)
}
