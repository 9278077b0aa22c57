// Package llm provides LLM collaborators for the analysis nodes: an
// OpenAI-compatible HTTP client, a Gemini client, and a retry wrapper that
// bounds every call with a deadline.
package llm

import (
	"context"
	"fmt"

	"datanerd/internal/config"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// NewClient builds the client selected by cfg. It returns (nil, nil) when no
// provider is configured; nodes then use their deterministic fallbacks.
func NewClient(ctx context.Context, cfg *config.Config) (types.LLMClient, error) {
	if !cfg.LLMEnabled() {
		logging.Boot("no LLM provider configured, running deterministic nodes")
		return nil, nil
	}

	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.DefaultModel(),
			Timeout: cfg.GetLLMTimeout(),
		}), nil
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.DefaultModel(),
			Timeout: cfg.GetLLMTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLM.Provider)
	}
}
