package agent

import (
	"context"
	"net/http"
	"strings"
)

// OpenRouterClient implements Agent for OpenRouter.
type OpenRouterClient struct {
	BaseClient
	apiKey     string
	model      string
	httpClient *http.Client
	apiURL     string
}

// NewOpenRouterClient creates a new OpenRouter client
func NewOpenRouterClient(apiKey, model, baseURL string) *OpenRouterClient {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterClient{
		BaseClient: NewBaseClient("openrouter"),
		apiKey:     apiKey,
		model:      model,
		httpClient: newHTTPClient(),
		apiURL:     strings.TrimRight(baseURL, "/") + "/chat/completions",
	}
}

// WithMockResponder sets a mock responder for testing
func (c *OpenRouterClient) WithMockResponder(fn func(Request) (string, error)) *OpenRouterClient {
	c.mockResponder = fn
	return c
}

// Analyze implements Agent.
func (c *OpenRouterClient) Analyze(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.SendWithRetry(ctx, Request{System: systemPrompt, User: userPrompt, MaxTokens: maxTokens}, c.sendOnce)
}

func (c *OpenRouterClient) sendOnce(ctx context.Context, r Request) (string, error) {
	return sendChatOnce(ctx, chatConfig{
		Provider:   c.Provider,
		APIKey:     c.apiKey,
		Model:      c.model,
		APIURL:     c.apiURL,
		HTTPClient: c.httpClient,
		Headers: map[string]string{
			"HTTP-Referer": "https://github.com/skillvet/skillvet",
			"X-Title":      "skillvet",
		},
	}, r)
}
