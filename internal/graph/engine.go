package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"datanerd/internal/agents"
	"datanerd/internal/logging"
	"datanerd/internal/state"
	"datanerd/internal/table"
	"datanerd/internal/types"
)

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusRetryExhausted    Status = "aborted_retry_exhausted"
	StatusRunaway           Status = "aborted_runaway"
	StatusFatalPrecondition Status = "fatal_precondition"
	StatusCancelled         Status = "cancelled"
)

// Default limits.
const (
	DefaultMaxRetries = 3
	DefaultStepBudget = 200
)

// NodeFunc is one processing node.
type NodeFunc func(ctx context.Context, st *state.AnalysisState) error

// Nodes is the dispatch table indexed by node.
type Nodes map[NodeID]NodeFunc

// DispatchTable binds the crew's nodes.
func DispatchTable(c *agents.Crew) Nodes {
	return Nodes{
		Situation: c.SituationAwareness,
		Planner:   c.Planner,
		Coder:     c.Coder,
		Execution: c.Execute,
		Revision:  c.Revise,
		Reporter:  c.Reporter,
		Reviewer:  c.Reviewer,
	}
}

// Options bounds a run.
type Options struct {
	MaxRetries int
	// StepBudget caps node invocations. Once the plan is known the budget
	// tightens to what the plan can legitimately need.
	StepBudget int
	// TaskTimeout bounds one code execution attempt.
	TaskTimeout time.Duration
	// NodeTimeout bounds every other node.
	NodeTimeout time.Duration
	// TracerProvider receives run and node spans. Nil uses the global
	// provider.
	TracerProvider trace.TracerProvider
}

// RunResult is everything a finished run produced.
type RunResult struct {
	RunID      string                  `json:"run_id"`
	Dataset    string                  `json:"dataset"`
	Status     Status                  `json:"status"`
	Report     string                  `json:"report"`
	Incomplete bool                    `json:"incomplete"`
	Results    []state.ExecutionResult `json:"results"`
	Summary    *table.Summary          `json:"summary,omitempty"`
	Plan       []state.Task            `json:"plan"`
	Failures   []state.AttemptError    `json:"failures,omitempty"`
	Notes      []string                `json:"notes,omitempty"`
	Steps      int                     `json:"steps"`
	Trace      []NodeID                `json:"trace"`
	Err        error                   `json:"-"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// Error returns the run error message, or "".
func (r *RunResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunOption customizes a single run.
type RunOption func(*runConfig)

type runConfig struct {
	runID string
	sink  EventSink
}

// WithEvents delivers run events to sink.
func WithEvents(sink EventSink) RunOption {
	return func(c *runConfig) { c.sink = sink }
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// Engine runs analyses. It holds no per-run state; concurrent runs are
// independent.
type Engine struct {
	nodes  Nodes
	opts   Options
	route  func(NodeID, *state.AnalysisState, int) NodeID
	tracer trace.Tracer
}

// NewEngine creates an engine over nodes.
func NewEngine(nodes Nodes, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.StepBudget <= 0 {
		opts.StepBudget = DefaultStepBudget
	}
	return &Engine{nodes: nodes, opts: opts, route: Route, tracer: tracerFrom(opts.TracerProvider)}
}

// PlanBudget is the most steps a run over a plan of n tasks can need.
func PlanBudget(n, maxRetries int) int {
	return 4 + n*(2*maxRetries+2)
}

type run struct {
	e      *Engine
	id     string
	sink   EventSink
	st     *state.AnalysisState
	steps  int
	trace  []NodeID
	budget int
}

func (r *run) emit(ev Event) {
	if r.sink == nil {
		return
	}
	ev.RunID = r.id
	ev.Step = r.steps
	ev.TaskIndex = r.st.TaskIndex()
	ev.ErrorCount = r.st.ErrorCount()
	ev.Timestamp = time.Now()
	r.sink(ev)
}

// Run analyzes t and always returns a result. A run stops at Terminate,
// Abort, a fatal node error, budget exhaustion or ctx cancellation.
func (e *Engine) Run(ctx context.Context, t *table.Table, opts ...RunOption) *RunResult {
	cfg := runConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	dataset := ""
	if t != nil {
		dataset = t.Name()
	}
	r := &run{
		e:      e,
		id:     cfg.runID,
		sink:   cfg.sink,
		st:     state.New(t, e.opts.MaxRetries),
		budget: e.opts.StepBudget,
	}
	res := &RunResult{RunID: r.id, Dataset: dataset, StartedAt: time.Now()}

	ctx, span := e.startRunSpan(ctx, r.id, dataset)
	logging.Graph("run %s started on %q (max_retries=%d, budget=%d)", r.id, dataset, e.opts.MaxRetries, r.budget)

	res.Status, res.Err = r.loop(ctx)
	r.finish(res)

	e.endRunSpan(span, res)
	r.emit(Event{Type: EventRunCompleted, Message: string(res.Status)})
	if res.Err != nil {
		logging.Get(logging.CategoryGraph).Warn("run %s ended %s after %d steps: %v", r.id, res.Status, res.Steps, res.Err)
	} else {
		logging.Graph("run %s completed in %d steps", r.id, res.Steps)
	}
	return res
}

func (r *run) loop(ctx context.Context) (Status, error) {
	e := r.e
	node := Situation
	for {
		if err := ctx.Err(); err != nil {
			return StatusCancelled, fmt.Errorf("run cancelled before %s: %w", node, err)
		}
		if r.steps >= r.budget {
			return StatusRunaway, &types.RunawayExecutionError{Steps: r.steps, Budget: r.budget, LastNode: lastNode(r.trace)}
		}

		fn, ok := e.nodes[node]
		if !ok {
			return StatusFatalPrecondition, fmt.Errorf("no handler for node %s", node)
		}

		r.steps++
		r.trace = append(r.trace, node)
		r.emit(Event{Type: EventNodeStarted, Node: node})

		nctx, span := e.startNodeSpan(ctx, node, r.steps, r.st)
		err := r.invoke(nctx, node, fn)

		if ctx.Err() != nil {
			e.endNodeSpan(span, node, err)
			return StatusCancelled, fmt.Errorf("run cancelled during %s: %w", node, ctx.Err())
		}
		if err != nil {
			r.emit(Event{Type: EventNodeFailed, Node: node, Message: err.Error()})
			if !types.IsRetryable(err) {
				e.endNodeSpan(span, node, err)
				logging.Get(logging.CategoryGraph).Error("%s failed fatally: %v", node, err)
				return StatusFatalPrecondition, fmt.Errorf("%s: %w", node, err)
			}
		} else {
			r.emit(Event{Type: EventNodeCompleted, Node: node})
		}

		if node == Planner && err == nil {
			if b := PlanBudget(r.st.PlanLen(), e.opts.MaxRetries); b < r.budget {
				logging.GraphDebug("run %s: step budget tightened from %d to %d", r.id, r.budget, b)
				r.budget = b
			}
		}

		next := e.route(node, r.st, e.opts.MaxRetries)
		e.endNodeSpan(span, next, err)
		r.emit(Event{Type: EventRoute, Node: node, Next: next})
		logging.RoutingDebug("step %d: %s -> %s (task %d, errors %d)", r.steps, node, next, r.st.TaskIndex(), r.st.ErrorCount())

		switch next {
		case Terminate:
			return StatusCompleted, nil
		case Abort:
			logging.Routing("task %d exhausted %d attempt(s), aborting run %s", r.st.TaskIndex(), r.st.ErrorCount(), r.id)
			var cause error = errors.New("retries exhausted")
			if le := r.st.LastError(); le != nil {
				cause = le
			}
			return StatusRetryExhausted, fmt.Errorf("task %d aborted after %d failed attempt(s): %w",
				r.st.TaskIndex(), r.st.ErrorCount(), cause)
		}
		node = next
	}
}

func (r *run) invoke(ctx context.Context, node NodeID, fn NodeFunc) error {
	timeout := r.e.opts.NodeTimeout
	if node == Execution {
		timeout = r.e.opts.TaskTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, r.st)
}

func (r *run) finish(res *RunResult) {
	st := r.st
	res.Steps = r.steps
	res.Trace = append([]NodeID(nil), r.trace...)
	res.Summary = st.Summary()
	res.Plan = st.Plan()
	res.Results = st.Results()
	res.Failures = st.Failures()
	res.Notes = st.Notes()
	res.FinishedAt = time.Now()

	if res.Status == StatusCompleted {
		res.Report = st.Report()
		return
	}
	res.Incomplete = true
	if st.HasReport() {
		res.Report = st.Report()
		return
	}
	reason := string(res.Status)
	if res.Err != nil {
		reason = fmt.Sprintf("%s: %v", res.Status, res.Err)
	}
	res.Report = agents.PartialReport(st, reason)
}

func lastNode(trace []NodeID) string {
	if len(trace) == 0 {
		return ""
	}
	return trace[len(trace)-1].String()
}
