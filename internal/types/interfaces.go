package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
// Implementations live in internal/llm; nodes treat a nil client as
// "no LLM configured" and fall back to deterministic behavior.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// CompleteWithSystem calls f.
func (f LLMClientFunc) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
