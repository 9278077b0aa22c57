package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"datanerd/internal/config"
	"datanerd/internal/logging"
)

// spanExport owns the tracer provider and the file its spans go to.
type spanExport struct {
	provider *sdktrace.TracerProvider
	file     *os.File
}

// newSpanExport builds a provider that writes spans as JSON to cfg.File,
// or to stderr when no file is set.
func newSpanExport(cfg config.TracingConfig) (*spanExport, error) {
	var (
		w    io.Writer = os.Stderr
		file *os.File
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		w, file = f, f
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}
	logging.Boot("exporting spans to %s", describeTarget(cfg.File))
	return &spanExport{
		provider: sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)),
		file:     file,
	}, nil
}

// Shutdown flushes pending spans and closes the trace file.
func (s *spanExport) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.provider.Shutdown(ctx); err != nil {
		logging.Get(logging.CategoryBoot).Warn("failed to flush spans: %v", err)
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("failed to close trace file: %v", err)
		}
	}
}

func describeTarget(file string) string {
	if file == "" {
		return "stderr"
	}
	return file
}
