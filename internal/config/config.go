// Package config provides configuration management for datanerd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for datanerd.
type Config struct {
	// Core settings
	Name    string `yaml:"name" toml:"name"`
	Version string `yaml:"version" toml:"version"`

	// LLM settings
	LLM LLMConfig `yaml:"llm" toml:"llm"`

	// Orchestration settings
	Engine EngineConfig `yaml:"engine" toml:"engine"`

	// Planner settings
	Planner PlannerConfig `yaml:"planner" toml:"planner"`

	// Sandbox settings
	Sandbox SandboxConfig `yaml:"sandbox" toml:"sandbox"`

	// Run archive settings
	Store StoreConfig `yaml:"store" toml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Span export
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// EngineConfig configures the orchestration loop.
type EngineConfig struct {
	MaxRetries     int    `yaml:"max_retries" toml:"max_retries"`
	StepBudget     int    `yaml:"step_budget" toml:"step_budget"`
	PerTaskTimeout string `yaml:"per_task_timeout" toml:"per_task_timeout"`
	NodeTimeout    string `yaml:"node_timeout" toml:"node_timeout"`
}

// PlannerConfig configures plan construction.
type PlannerConfig struct {
	MaxTasks int  `yaml:"max_tasks" toml:"max_tasks"`
	UseLLM   bool `yaml:"use_llm" toml:"use_llm"`
}

// SandboxConfig configures the generated-code interpreter.
type SandboxConfig struct {
	AllowedPackages []string `yaml:"allowed_packages" toml:"allowed_packages"`
	MaxOutputBytes  int      `yaml:"max_output_bytes" toml:"max_output_bytes"`
}

// StoreConfig configures where finished runs are archived.
type StoreConfig struct {
	Disabled     bool   `yaml:"disabled" toml:"disabled"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	RunsDir      string `yaml:"runs_dir" toml:"runs_dir"`
}

// TracingConfig configures export of run and node spans.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// empty = stderr
	File string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// DefaultAllowedPackages is the stdlib surface generated code may import
// in addition to the analysis package.
var DefaultAllowedPackages = []string{"fmt", "strings", "strconv", "math", "sort", "errors", "unicode"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "datanerd",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "",
			Model:    "",
			Timeout:  "120s",
		},

		Engine: EngineConfig{
			MaxRetries:     3,
			StepBudget:     200,
			PerTaskTimeout: "30s",
			NodeTimeout:    "2m",
		},

		Planner: PlannerConfig{
			MaxTasks: 5,
			UseLLM:   true,
		},

		Sandbox: SandboxConfig{
			AllowedPackages: append([]string(nil), DefaultAllowedPackages...),
			MaxOutputBytes:  64 * 1024,
		},

		Store: StoreConfig{
			DatabasePath: ".datanerd/runs.db",
			RunsDir:      ".datanerd/runs",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML or TOML file, chosen by extension.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment. A key only selects a provider when
	// none is configured.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == ProviderOpenAI) {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderOpenAI
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == ProviderGemini) {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderGemini
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" && c.LLM.Provider == ProviderOpenAI {
		c.LLM.BaseURL = url
	}

	if raw := os.Getenv("DATANERD_MAX_RETRIES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			c.Engine.MaxRetries = n
		}
	}

	// Database path from environment
	if path := os.Getenv("DATANERD_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetPerTaskTimeout returns the per-attempt sandbox timeout as a duration.
func (c *Config) GetPerTaskTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.PerTaskTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetNodeTimeout returns the per-node deadline for LLM-backed nodes.
func (c *Config) GetNodeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.NodeTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// LLMEnabled reports whether an LLM provider is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != "" && c.LLM.Provider != ProviderNone
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine.max_retries must be >= 1, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.StepBudget < 1 {
		return fmt.Errorf("engine.step_budget must be >= 1, got %d", c.Engine.StepBudget)
	}
	for name, raw := range map[string]string{
		"engine.per_task_timeout": c.Engine.PerTaskTimeout,
		"engine.node_timeout":     c.Engine.NodeTimeout,
		"llm.timeout":             c.LLM.Timeout,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, raw)
		}
	}
	if c.Planner.MaxTasks < 1 {
		return fmt.Errorf("planner.max_tasks must be >= 1, got %d", c.Planner.MaxTasks)
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be >= 0, got %d", c.Sandbox.MaxOutputBytes)
	}
	for _, pkg := range c.Sandbox.AllowedPackages {
		if !isAllowablePackage(pkg) {
			return fmt.Errorf("sandbox.allowed_packages: %q cannot be exposed to generated code", pkg)
		}
	}
	return c.LLM.Validate()
}

// isAllowablePackage reports whether pkg is one of the pure, side-effect-free
// packages the sandbox knows how to expose.
func isAllowablePackage(pkg string) bool {
	for _, p := range DefaultAllowedPackages {
		if p == pkg {
			return true
		}
	}
	return false
}
