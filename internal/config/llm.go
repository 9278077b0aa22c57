package config

import "fmt"

// Supported LLM providers. An empty provider (or "none") runs every node
// with its deterministic fallback.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderNone, ProviderOpenAI, ProviderGemini}

// LLMConfig configures the LLM collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // none, openai, gemini
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Model    string `yaml:"model" toml:"model"`
	BaseURL  string `yaml:"base_url" toml:"base_url"` // OpenAI-compatible endpoint
	Timeout  string `yaml:"timeout" toml:"timeout"`
}

// Validate checks the provider name and that a key is present for
// providers that need one.
func (c *LLMConfig) Validate() error {
	if c.Provider == "" || c.Provider == ProviderNone {
		return nil
	}
	valid := false
	for _, p := range ValidProviders {
		if c.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid LLM provider %q: must be one of %v", c.Provider, ValidProviders)
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for provider %q", c.Provider)
	}
	return nil
}

// DefaultModel returns the configured model or a provider default.
func (c *LLMConfig) DefaultModel() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-2.5-flash"
	}
	return ""
}
