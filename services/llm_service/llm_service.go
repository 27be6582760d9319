// Package llm_service wraps the language model providers behind a single
// interface and turns raw completions into validated agent steps.
package llm_service

import "context"

// LLMService is implemented by each model provider. Implementations retry
// transient API failures internally and return the raw completion text.
type LLMService interface {
    CallLLM(ctx context.Context, prompt string) (string, error)
}

// MockLLMService backs tests.
type MockLLMService struct {
    CallLLMFunc func(ctx context.Context, prompt string) (string, error)
    Prompts     []string
}

func (m *MockLLMService) CallLLM(ctx context.Context, prompt string) (string, error) {
    m.Prompts = append(m.Prompts, prompt)
    return m.CallLLMFunc(ctx, prompt)
}
