package graph

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"datanerd/internal/state"
)

const tracerName = "datanerd/graph"

// startRunSpan starts the span covering a whole run.
func (e *Engine) startRunSpan(ctx context.Context, runID, dataset string) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "analysis.run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.dataset", dataset),
		attribute.Int("run.max_retries", e.opts.MaxRetries),
	)
	return ctx, span
}

// endRunSpan ends the run span with its outcome.
func (e *Engine) endRunSpan(span trace.Span, res *RunResult) {
	span.SetAttributes(
		attribute.String("run.status", string(res.Status)),
		attribute.Int("run.steps", res.Steps),
		attribute.Int("run.results", len(res.Results)),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Status))
	}
	span.End()
}

// startNodeSpan starts a span for one node invocation.
func (e *Engine) startNodeSpan(ctx context.Context, node NodeID, step int, st *state.AnalysisState) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "node."+node.String())
	span.SetAttributes(
		attribute.String("node.name", node.String()),
		attribute.Int("node.step", step),
		attribute.Int("task.index", st.TaskIndex()),
		attribute.Int("task.error_count", st.ErrorCount()),
	)
	return ctx, span
}

// endNodeSpan ends a node span.
func (e *Engine) endNodeSpan(span trace.Span, next NodeID, err error) {
	span.SetAttributes(attribute.String("node.next", next.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func tracerFrom(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		return otel.Tracer(tracerName)
	}
	return tp.Tracer(tracerName)
}
