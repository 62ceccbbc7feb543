// Package agent contains the clients for the hosted language models used by
// semantic analysis. Every client satisfies Agent; the pipeline never depends
// on a concrete provider.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Agent sends one system/user prompt pair and returns the raw response text.
// Implementations must be safe for concurrent use.
type Agent interface {
	Analyze(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// Providers lists the accepted provider names.
var Providers = []string{"anthropic", "openai", "openrouter", "ollama", "mock"}

// NewAgent is a factory function that returns an Agent based on the provider.
func NewAgent(cfg Config) (Agent, error) {
	model := cfg.Model

	// OpenRouter expects vendor-qualified model names
	if cfg.Provider == "openrouter" && !strings.Contains(model, "/") {
		switch {
		case strings.HasPrefix(model, "claude-"):
			model = "anthropic/" + model
		case strings.HasPrefix(model, "gpt-"):
			model = "openai/" + model
		case strings.HasPrefix(model, "gemini-"):
			model = "google/" + model
		case strings.HasPrefix(model, "llama-"):
			model = "meta-llama/" + model
		case strings.HasPrefix(model, "mistral-"), strings.HasPrefix(model, "mixtral-"):
			model = "mistralai/" + model
		}
	}

	var a Agent
	var base *BaseClient
	switch cfg.Provider {
	case "anthropic":
		c := NewAnthropicClient(cfg.APIKey, model, cfg.BaseURL)
		a, base = c, &c.BaseClient
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, model, cfg.BaseURL)
		a, base = c, &c.BaseClient
	case "openrouter":
		c := NewOpenRouterClient(cfg.APIKey, model, cfg.BaseURL)
		a, base = c, &c.BaseClient
	case "ollama":
		c := NewOllamaClient(cfg.BaseURL, model)
		a, base = c, &c.BaseClient
	case "mock":
		return NewMockAgent(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if cfg.MaxRetries >= 0 {
		base.MaxRetries = cfg.MaxRetries
	}
	return a, nil
}

// RequiresAPIKey reports whether provider needs a credential to be usable.
func RequiresAPIKey(provider string) bool {
	switch provider {
	case "ollama", "mock":
		return false
	}
	return true
}

func defaultBackoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * time.Second
}
