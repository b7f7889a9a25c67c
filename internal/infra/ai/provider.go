// Package ai is the facade over the external AI provider. It derives article
// summaries, category labels and advertising verdicts, handles retries, rate
// limiting and malformed responses, and caches analysis results per URL.
//
// The wire provider is selectable: the in-house KM HTTP contract is the
// default, with Claude and OpenAI adapters available behind the same
// interface and a NoOp provider for tests.
package ai

import (
	"context"
	"fmt"
	"os"
	"time"
)

// CompletionRequest is one chat-style completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Provider executes completions against one upstream model service.
type Provider interface {
	// Complete returns the model's text output for the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// Config selects and parameterizes the provider.
type Config struct {
	Provider string // km | claude | openai | noop
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// LoadConfigFromEnv reads provider settings.
//
// Environment variables:
//   - AI_PROVIDER: km (default), claude, openai, noop
//   - AI_API_URL: endpoint URL (km provider)
//   - AI_API_KEY: provider API key
//   - AI_MODEL: model identifier
func LoadConfigFromEnv() Config {
	cfg := Config{
		Provider: os.Getenv("AI_PROVIDER"),
		Endpoint: os.Getenv("AI_API_URL"),
		APIKey:   os.Getenv("AI_API_KEY"),
		Model:    os.Getenv("AI_MODEL"),
		Timeout:  60 * time.Second,
	}
	if cfg.Provider == "" {
		cfg.Provider = "km"
	}
	return cfg
}

// NewProvider builds the configured provider.
func NewProvider(cfg Config, deps ProviderDeps) (Provider, error) {
	switch cfg.Provider {
	case "km":
		if cfg.Endpoint == "" || cfg.APIKey == "" {
			return nil, fmt.Errorf("km provider requires AI_API_URL and AI_API_KEY")
		}
		return newKMProvider(cfg, deps.HTTP), nil
	case "claude":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("claude provider requires AI_API_KEY")
		}
		return newClaudeProvider(cfg), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires AI_API_KEY")
		}
		return newOpenAIProvider(cfg), nil
	case "noop":
		return NewNoOpProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q (expected km, claude, openai, or noop)", cfg.Provider)
	}
}
