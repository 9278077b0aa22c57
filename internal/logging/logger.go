// Package logging provides config-driven categorized logging for datanerd.
// Each category gets its own zap logger tagged with a "category" field so a
// single run can be followed across the graph, the sandbox and the LLM layer.
// Logging is controlled by debug_mode in the config - when false, nothing is
// written and every logger is a no-op.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	// Core system categories
	CategoryBoot  Category = "boot"  // Startup, config loading
	CategoryData  Category = "data"  // Table loading and profiling
	CategoryAPI   Category = "api"   // LLM API calls
	CategoryStore Category = "store" // Run archive operations

	// Node categories
	CategoryPlanner  Category = "planner"  // Plan construction and validation
	CategoryCoder    Category = "coder"    // Code generation and revision
	CategorySandbox  Category = "sandbox"  // Generated code execution
	CategoryReporter Category = "reporter" // Report drafting
	CategoryReviewer Category = "reviewer" // Report review

	// Engine categories
	CategoryRouting Category = "routing" // Router decisions
	CategoryGraph   Category = "graph"   // Orchestrator loop
	CategoryIntake  Category = "intake"  // Watch-folder intake
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	DebugMode  bool
	Level      string          // debug, info, warn, error
	Format     string          // json, text
	File       string          // empty = stderr
	Categories map[string]bool // per-category toggles; nil = all enabled
}

// Logger is a category-scoped logger. The zero value is a no-op logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	base     *zap.Logger
	opts     Options
	configMu sync.RWMutex
)

// Initialize builds the shared zap logger from options.
// Calling it again replaces the previous configuration.
func Initialize(o Options) error {
	if !o.DebugMode {
		setBase(nil, o)
		return nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(o.Level))
	if strings.EqualFold(o.Format, "json") {
		cfg.Encoding = "json"
	} else {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	if o.File != "" {
		cfg.OutputPaths = []string{o.File}
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	setBase(l, o)

	Boot("logging initialized: level=%s format=%s file=%q", o.Level, o.Format, o.File)
	return nil
}

// InitializeWithLogger installs a caller-provided zap logger. Used by tests
// (zaptest/observer) and by the CLI when it already owns a logger.
func InitializeWithLogger(l *zap.Logger, o Options) {
	o.DebugMode = l != nil
	setBase(l, o)
}

func setBase(l *zap.Logger, o Options) {
	configMu.Lock()
	old := base
	base = l
	opts = o
	configMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()

	if old != nil && old != l {
		_ = old.Sync()
	}
}

func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether logging is enabled at all
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return opts.DebugMode && base != nil
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !opts.DebugMode || base == nil {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	configMu.RLock()
	b := base
	configMu.RUnlock()
	if b == nil {
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		sugar:    b.With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value context,
// e.g. logging.Get(CategoryGraph).With("run_id", id).
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l == nil || l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered log entries (call at shutdown)
func Sync() {
	configMu.RLock()
	b := base
	configMu.RUnlock()
	if b != nil {
		_ = b.Sync()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Data logs to the data category
func Data(format string, args ...interface{}) {
	Get(CategoryData).Info(format, args...)
}

// DataDebug logs debug to the data category
func DataDebug(format string, args ...interface{}) {
	Get(CategoryData).Debug(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// Planner logs to the planner category
func Planner(format string, args ...interface{}) {
	Get(CategoryPlanner).Info(format, args...)
}

// PlannerDebug logs debug to the planner category
func PlannerDebug(format string, args ...interface{}) {
	Get(CategoryPlanner).Debug(format, args...)
}

// Coder logs to the coder category
func Coder(format string, args ...interface{}) {
	Get(CategoryCoder).Info(format, args...)
}

// CoderDebug logs debug to the coder category
func CoderDebug(format string, args ...interface{}) {
	Get(CategoryCoder).Debug(format, args...)
}

// Sandbox logs to the sandbox category
func Sandbox(format string, args ...interface{}) {
	Get(CategorySandbox).Info(format, args...)
}

// SandboxDebug logs debug to the sandbox category
func SandboxDebug(format string, args ...interface{}) {
	Get(CategorySandbox).Debug(format, args...)
}

// Reporter logs to the reporter category
func Reporter(format string, args ...interface{}) {
	Get(CategoryReporter).Info(format, args...)
}

// Reviewer logs to the reviewer category
func Reviewer(format string, args ...interface{}) {
	Get(CategoryReviewer).Info(format, args...)
}

// Routing logs to the routing category
func Routing(format string, args ...interface{}) {
	Get(CategoryRouting).Info(format, args...)
}

// RoutingDebug logs debug to the routing category
func RoutingDebug(format string, args ...interface{}) {
	Get(CategoryRouting).Debug(format, args...)
}

// Graph logs to the graph category
func Graph(format string, args ...interface{}) {
	Get(CategoryGraph).Info(format, args...)
}

// GraphDebug logs debug to the graph category
func GraphDebug(format string, args ...interface{}) {
	Get(CategoryGraph).Debug(format, args...)
}

// Intake logs to the intake category
func Intake(format string, args ...interface{}) {
	Get(CategoryIntake).Info(format, args...)
}
