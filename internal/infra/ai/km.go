package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"newsflow/internal/infra/httpclient"
)

// ProviderDeps carries shared infrastructure into provider constructors.
type ProviderDeps struct {
	HTTP *httpclient.Client
}

// RateLimitedError propagates the provider's 429 to the enrichment loop,
// which pauses the cycle's AI work for the retry window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("AI provider rate limited, retry after %s", e.RetryAfter)
}

// kmProvider speaks the provider's fixed wire contract: POST JSON with
// messages/model/max_tokens/temperature/top_p, authenticated by the
// X-KM-AccessKey header, answering {choices: [{message: {content}}]}.
type kmProvider struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	client   *httpclient.Client
}

func newKMProvider(cfg Config, client *httpclient.Client) *kmProvider {
	return &kmProvider{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		client:   client,
	}
}

func (p *kmProvider) Name() string { return "km" }

type kmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type kmRequest struct {
	Model       string      `json:"model"`
	Messages    []kmMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
	TopP        float64     `json:"top_p,omitempty"`
}

type kmResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *kmProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]kmMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, kmMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, kmMessage{Role: "user", Content: req.Prompt})

	payload := kmRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.client.Post(ctx, p.endpoint, body, map[string]string{
		"X-KM-AccessKey": p.apiKey,
		"Content-Type":   "application/json",
	})
	if err != nil {
		var rateErr *httpclient.RateLimitedError
		if errors.As(err, &rateErr) {
			return "", &RateLimitedError{RetryAfter: rateErr.RetryAfter}
		}
		return "", err
	}

	var decoded kmResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return decoded.Choices[0].Message.Content, nil
}
