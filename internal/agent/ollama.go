package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OllamaClient implements Agent for a local Ollama service.
type OllamaClient struct {
	BaseClient
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
// baseURL defaults to http://localhost:11434 if empty.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		BaseClient: NewBaseClient("ollama"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: newHTTPClient(),
	}
}

// WithMockResponder sets a mock responder for testing
func (c *OllamaClient) WithMockResponder(fn func(Request) (string, error)) *OllamaClient {
	c.mockResponder = fn
	return c
}

// Analyze implements Agent.
func (c *OllamaClient) Analyze(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.SendWithRetry(ctx, Request{System: systemPrompt, User: userPrompt, MaxTokens: maxTokens}, c.sendOnce)
}

func (c *OllamaClient) sendOnce(ctx context.Context, r Request) (string, error) {
	options := map[string]any{"temperature": 0}
	if r.MaxTokens > 0 {
		options["num_predict"] = r.MaxTokens
	}
	body := map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: r.System},
			{Role: "user", Content: r.User},
		},
		"stream":  false,
		"format":  "json",
		"options": options,
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Done bool `json:"done"`
	}
	if err := postJSON(ctx, c.httpClient, c.Provider, c.baseURL+"/api/chat", nil, body, &response); err != nil {
		return "", err
	}
	if response.Message.Content == "" {
		return "", fmt.Errorf("no content in response")
	}
	return response.Message.Content, nil
}
