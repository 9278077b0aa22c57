package config

import "datanerd/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" toml:"level"`
	// json, text
	Format string `yaml:"format" toml:"format"`
	// empty = stderr
	File string `yaml:"file,omitempty" toml:"file,omitempty"`
	// Master toggle - false = no logging
	DebugMode bool `yaml:"debug_mode" toml:"debug_mode"`
	// Per-category toggles
	Categories map[string]bool `yaml:"categories,omitempty" toml:"categories,omitempty"`
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false.
// Returns true if debug_mode is true and category is enabled (or not specified).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true // All enabled by default in debug mode
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Options converts the config section into logging.Options.
func (c LoggingConfig) Options() logging.Options {
	return logging.Options{
		DebugMode:  c.DebugMode,
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		Categories: c.Categories,
	}
}
