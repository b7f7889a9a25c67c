package ai

import "context"

// NoOpProvider returns canned neutral responses. Used in tests and when the
// pipeline runs without AI credentials.
type NoOpProvider struct{}

// NewNoOpProvider creates a NoOpProvider.
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

func (p *NoOpProvider) Name() string { return "noop" }

func (p *NoOpProvider) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	return "{}", nil
}
