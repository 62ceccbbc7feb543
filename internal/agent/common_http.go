package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var errMissingAPIKey = errors.New("API key is required")

// maxErrorBody caps how much of a failed response is kept in errors.
const maxErrorBody = 2048

func newHTTPClient() *http.Client {
	// The analyzer's context carries the real deadline.
	return &http.Client{Timeout: 10 * time.Minute}
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: provider, Code: resp.StatusCode, Body: string(b)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// chatConfig describes an OpenAI-compatible chat completions endpoint.
type chatConfig struct {
	Provider   string
	APIKey     string
	Model      string
	APIURL     string
	HTTPClient *http.Client
	Headers    map[string]string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sendChatOnce performs a single chat completions request.
func sendChatOnce(ctx context.Context, cfg chatConfig, r Request) (string, error) {
	if cfg.APIKey == "" {
		return "", errMissingAPIKey
	}

	body := map[string]any{
		"model": cfg.Model,
		"messages": []chatMessage{
			{Role: "system", Content: r.System},
			{Role: "user", Content: r.User},
		},
		"temperature": 0,
	}
	if r.MaxTokens > 0 {
		body["max_tokens"] = r.MaxTokens
	}

	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, cfg.HTTPClient, cfg.Provider, cfg.APIURL, headers, body, &response); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return response.Choices[0].Message.Content, nil
}
