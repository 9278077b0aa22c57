package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"datanerd/internal/agents"
	"datanerd/internal/config"
	"datanerd/internal/graph"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/sandbox"
	"datanerd/internal/store"
	"datanerd/internal/table"
)

// pipeline wires the sandbox, the LLM collaborator, the node crew, the
// engine and the run archive for one CLI invocation.
type pipeline struct {
	cfg     *config.Config
	engine  *graph.Engine
	crew    *agents.Crew
	archive *store.Store
	runsDir string
	spans   *spanExport
}

// newPipeline builds a pipeline from cfg. With archive false nothing is
// written to the run archive or run directories.
func newPipeline(ctx context.Context, cfg *config.Config, archive bool) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sb := sandbox.New(sandbox.Config{
		Timeout:         cfg.GetPerTaskTimeout(),
		AllowedPackages: cfg.Sandbox.AllowedPackages,
		MaxOutputBytes:  cfg.Sandbox.MaxOutputBytes,
	})

	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	crew := agents.NewCrew(agents.Options{
		LLM:         llm.WithRetry(client, cfg.GetLLMTimeout()),
		Runner:      sb,
		MaxTasks:    cfg.Planner.MaxTasks,
		PlanWithLLM: cfg.Planner.UseLLM,
	})

	opts := graph.Options{
		MaxRetries:  cfg.Engine.MaxRetries,
		StepBudget:  cfg.Engine.StepBudget,
		TaskTimeout: cfg.GetPerTaskTimeout(),
		NodeTimeout: cfg.GetNodeTimeout(),
	}
	p := &pipeline{cfg: cfg, crew: crew}
	if cfg.Tracing.Enabled {
		spans, err := newSpanExport(cfg.Tracing)
		if err != nil {
			return nil, err
		}
		p.spans = spans
		opts.TracerProvider = spans.provider
	}
	p.engine = graph.NewEngine(graph.DispatchTable(crew), opts)

	if archive && !cfg.Store.Disabled {
		s, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.archive = s
		p.runsDir = cfg.Store.RunsDir
	}
	logging.Boot("pipeline ready (llm=%t, archive=%t, tracing=%t)", crew.LLMEnabled(), p.archive != nil, p.spans != nil)
	return p, nil
}

// Close flushes spans and releases the run archive.
func (p *pipeline) Close() {
	if p.spans != nil {
		p.spans.Shutdown()
	}
	if p.archive != nil {
		if err := p.archive.Close(); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to close archive: %v", err)
		}
	}
}

// outcome is one analyzed file.
type outcome struct {
	Path   string
	Result *graph.RunResult
	RunDir string
}

// analyze loads path and runs one analysis over it. Events go to sink and,
// when archiving, to the run's events.jsonl. A load failure is returned as
// an error; every other failure is reported through the result status.
func (p *pipeline) analyze(ctx context.Context, path string, sink graph.EventSink) (*outcome, error) {
	t, err := table.LoadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	id := uuid.NewString()
	out := &outcome{Path: path}

	var evlog *store.EventLog
	if p.archive != nil {
		evlog, err = store.NewEventLog(filepath.Join(store.RunDir(p.runsDir, id), store.EventsFile))
		if err != nil {
			return nil, err
		}
		sink = teeSinks(sink, evlog.Sink())
	}

	res := p.engine.Run(ctx, t, graph.WithRunID(id), graph.WithEvents(sink))
	out.Result = res

	if evlog != nil {
		if err := evlog.Close(); err != nil {
			logging.Get(logging.CategoryStore).Warn("event log for run %s: %v", id, err)
		}
	}
	if p.archive == nil {
		return out, nil
	}

	dir, err := store.WriteRunDir(p.runsDir, res)
	if err != nil {
		return out, err
	}
	out.RunDir = dir
	// The archive write outlives a cancelled run.
	if err := p.archive.SaveRun(context.WithoutCancel(ctx), res, dir); err != nil {
		return out, err
	}
	return out, nil
}

// teeSinks fans one event out to every non-nil sink.
func teeSinks(sinks ...graph.EventSink) graph.EventSink {
	var live []graph.EventSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(ev graph.Event) {
		for _, s := range live {
			s(ev)
		}
	}
}
