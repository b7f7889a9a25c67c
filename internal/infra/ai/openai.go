package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiProvider adapts the OpenAI chat completion API.
type openaiProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(cfg Config) *openaiProvider {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	client := openai.NewClient(cfg.APIKey)
	if cfg.Endpoint != "" {
		config := openai.DefaultConfig(cfg.APIKey)
		config.BaseURL = cfg.Endpoint
		client = openai.NewClientWithConfig(config)
	}
	return &openaiProvider{client: client, model: model}
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
