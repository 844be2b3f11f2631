package domain

import "context"

// GenerationRequest is a single-prompt completion request.
type GenerationRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Generator is the generative-text contract.
// An empty Text with a nil error means the model returned no usable content;
// callers decide whether that is a fallback case or a failure.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// GenerationResult carries the first generated text part and token usage.
type GenerationResult struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}
