package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("DATANERD_MAX_RETRIES", "")
	t.Setenv("DATANERD_DB", "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "datanerd" {
		t.Errorf("expected Name=datanerd, got %s", cfg.Name)
	}
	if cfg.Engine.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Planner.MaxTasks != 5 {
		t.Errorf("expected MaxTasks=5, got %d", cfg.Planner.MaxTasks)
	}
	if cfg.LLMEnabled() {
		t.Error("default config should run without an LLM")
	}
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearLLMEnv(t)

	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := DefaultConfig()
			cfg.LLM.Provider = ProviderOpenAI
			cfg.LLM.APIKey = "sk-test"
			cfg.Engine.MaxRetries = 5
			cfg.Sandbox.AllowedPackages = []string{"strings", "math"}
			cfg.Logging.Categories = map[string]bool{"sandbox": false}

			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, ProviderOpenAI, loaded.LLM.Provider)
			assert.Equal(t, "sk-test", loaded.LLM.APIKey)
			assert.Equal(t, 5, loaded.Engine.MaxRetries)
			assert.Equal(t, []string{"strings", "math"}, loaded.Sandbox.AllowedPackages)
			assert.Equal(t, map[string]bool{"sandbox": false}, loaded.Logging.Categories)
		})
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearLLMEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	clearLLMEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_retries: 2\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
	assert.Equal(t, 200, cfg.Engine.StepBudget)
	assert.Equal(t, "30s", cfg.Engine.PerTaskTimeout)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine\nmax_retries = "), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero retries", func(c *Config) { c.Engine.MaxRetries = 0 }, true},
		{"zero budget", func(c *Config) { c.Engine.StepBudget = 0 }, true},
		{"bad duration", func(c *Config) { c.Engine.PerTaskTimeout = "soon" }, true},
		{"negative duration", func(c *Config) { c.Engine.NodeTimeout = "-1s" }, true},
		{"zero max tasks", func(c *Config) { c.Planner.MaxTasks = 0 }, true},
		{"os not allowable", func(c *Config) { c.Sandbox.AllowedPackages = []string{"os"} }, true},
		{"openai without key", func(c *Config) { c.LLM.Provider = ProviderOpenAI }, true},
		{"openai with key", func(c *Config) { c.LLM.Provider = ProviderOpenAI; c.LLM.APIKey = "k" }, false},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "zai"; c.LLM.APIKey = "k" }, true},
		{"explicit none", func(c *Config) { c.LLM.Provider = ProviderNone }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.GetPerTaskTimeout())
	assert.Equal(t, 2*time.Minute, cfg.GetNodeTimeout())
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())

	cfg.Engine.PerTaskTimeout = "garbage"
	assert.Equal(t, 30*time.Second, cfg.GetPerTaskTimeout(), "falls back on parse error")
}

func TestLLMConfig_DefaultModel(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", (&LLMConfig{Provider: ProviderOpenAI}).DefaultModel())
	assert.Equal(t, "gemini-2.5-flash", (&LLMConfig{Provider: ProviderGemini}).DefaultModel())
	assert.Equal(t, "custom", (&LLMConfig{Provider: ProviderGemini, Model: "custom"}).DefaultModel())
	assert.Empty(t, (&LLMConfig{}).DefaultModel())
}

func TestLoggingConfig_Options(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "json", DebugMode: true, Categories: map[string]bool{"graph": false}}
	opts := lc.Options()
	assert.True(t, opts.DebugMode)
	assert.Equal(t, "json", opts.Format)
	assert.False(t, lc.IsCategoryEnabled("graph"))
	assert.True(t, lc.IsCategoryEnabled("planner"))
}
