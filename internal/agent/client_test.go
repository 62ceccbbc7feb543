package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(int) time.Duration { return 10 * time.Millisecond }

func TestAnthropicClient_Analyze(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"{\"riskLevel\":"},{"type":"text","text":"\"low\"}"}],"stop_reason":"end_turn"}`)
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", "claude-test", server.URL)
	resp, err := client.Analyze(context.Background(), "sys", "user", 512)
	require.NoError(t, err)
	assert.Equal(t, `{"riskLevel":"low"}`, resp)

	assert.Equal(t, "sys", got["system"])
	assert.Equal(t, "claude-test", got["model"])
	assert.EqualValues(t, 512, got["max_tokens"])
}

func TestOpenAIClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body struct {
			Messages []chatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"verdict"}}]}`)
	}))
	defer server.Close()

	resp, err := NewOpenAIClient("k", "gpt-4o", server.URL).Analyze(context.Background(), "s", "u", 0)
	require.NoError(t, err)
	assert.Equal(t, "verdict", resp)
}

func TestOllamaClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprint(w, `{"message":{"content":"local verdict"},"done":true}`)
	}))
	defer server.Close()

	resp, err := NewOllamaClient(server.URL, "llama3").Analyze(context.Background(), "s", "u", 100)
	require.NoError(t, err)
	assert.Equal(t, "local verdict", resp)
}

func TestClient_NoKey(t *testing.T) {
	client := NewOpenAIClient("", "gpt-4", "")
	client.BackoffFn = fastBackoff

	_, err := client.Analyze(context.Background(), "s", "u", 0)
	assert.ErrorIs(t, err, errMissingAPIKey)

	_, err = NewAnthropicClient("", "claude", "").Analyze(context.Background(), "s", "u", 0)
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	client := NewOpenRouterClient("k", "anthropic/claude", server.URL)
	client.BackoffFn = fastBackoff

	resp, err := client.Analyze(context.Background(), "s", "u", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 3, calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewOpenAIClient("k", "m", server.URL)
	client.BackoffFn = fastBackoff

	_, err := client.Analyze(context.Background(), "s", "u", 0)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, 1, calls)
}

func TestClient_RetryExhausted(t *testing.T) {
	calls := 0
	client := NewAnthropicClient("k", "m", "")
	client.BackoffFn = fastBackoff
	client.MaxRetries = 2
	client.WithMockResponder(func(Request) (string, error) {
		calls++
		return "", errors.New("dial tcp: connection refused")
	})

	_, err := client.Analyze(context.Background(), "s", "u", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, calls)
}

func TestClient_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewOpenAIClient("k", "m", "")
	client.BackoffFn = func(int) time.Duration { return time.Hour }
	client.WithMockResponder(func(Request) (string, error) {
		cancel()
		return "", errors.New("temporary")
	})

	_, err := client.Analyze(ctx, "s", "u", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAgent(t *testing.T) {
	tests := []struct {
		provider string
		wantType any
		wantErr  bool
	}{
		{"anthropic", &AnthropicClient{}, false},
		{"openai", &OpenAIClient{}, false},
		{"openrouter", &OpenRouterClient{}, false},
		{"ollama", &OllamaClient{}, false},
		{"mock", &MockAgent{}, false},
		{"gemini-cli", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			a, err := NewAgent(Config{Provider: tt.provider, Model: "m", APIKey: "k"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, a)
		})
	}
}

func TestNewAgent_OpenRouterModelPrefix(t *testing.T) {
	a, err := NewAgent(Config{Provider: "openrouter", Model: "claude-3-5-sonnet", APIKey: "k", MaxRetries: 1})
	require.NoError(t, err)
	c := a.(*OpenRouterClient)
	assert.Equal(t, "anthropic/claude-3-5-sonnet", c.model)
	assert.Equal(t, 1, c.MaxRetries)
}

func TestMockAgent(t *testing.T) {
	m := NewMockAgent()
	resp, err := m.Analyze(context.Background(), "s", "u", 10)
	require.NoError(t, err)
	assert.Equal(t, MockResponse, resp)

	m.SetError(errors.New("boom"))
	_, err = m.Analyze(context.Background(), "s", "u2", 10)
	assert.EqualError(t, err, "boom")

	m.SetResponse("x")
	resp, err = m.Analyze(context.Background(), "s", "u3", 10)
	require.NoError(t, err)
	assert.Equal(t, "x", resp)
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, "u3", m.LastRequest().User)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount("   "))
	assert.Equal(t, 1, EstimateTokenCount("abc"))
	assert.Equal(t, 3, EstimateTokenCount("abcdefgh"))
}
