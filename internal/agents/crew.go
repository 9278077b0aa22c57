// Package agents implements the processing nodes of an analysis run.
//
// Every node has the signature func(ctx, *state.AnalysisState) error. A node
// reads what it needs through the state's accessors, writes its outputs and
// returns. Nodes never decide what runs next; that is the router's job.
// LLM failures are recovered locally with deterministic fallbacks and
// recorded as state notes.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/sandbox"
	"datanerd/internal/state"
	"datanerd/internal/table"
	"datanerd/internal/types"
)

// Node names, used in errors, notes and logs.
const (
	NodeSituation = "situation_awareness"
	NodePlanner   = "planner"
	NodeCoder     = "coder"
	NodeExecution = "code_execution"
	NodeRevision  = "code_revision"
	NodeReporter  = "reporter"
	NodeReviewer  = "reviewer"
)

// CodeRunner executes generated code against a table.
type CodeRunner interface {
	Execute(ctx context.Context, code string, t *table.Table) (*sandbox.Result, error)
}

// Options configures a Crew.
type Options struct {
	// LLM is optional; a nil or disabled caller selects deterministic
	// behavior everywhere.
	LLM         *llm.Caller
	Runner      CodeRunner
	MaxTasks    int
	PlanWithLLM bool
}

// Crew holds the collaborators shared by all nodes. It carries no per-run
// state and may serve concurrent runs.
type Crew struct {
	llm         *llm.Caller
	runner      CodeRunner
	maxTasks    int
	planWithLLM bool
}

// NewCrew creates a Crew.
func NewCrew(o Options) *Crew {
	if o.MaxTasks <= 0 {
		o.MaxTasks = DefaultMaxTasks
	}
	return &Crew{
		llm:         o.LLM,
		runner:      o.Runner,
		maxTasks:    o.MaxTasks,
		planWithLLM: o.PlanWithLLM,
	}
}

// LLMEnabled reports whether nodes will consult an LLM.
func (c *Crew) LLMEnabled() bool { return c.llm.Enabled() }

// =============================================================================
// SITUATION AWARENESS
// =============================================================================

// SituationAwareness profiles the input table and writes the data summary.
func (c *Crew) SituationAwareness(ctx context.Context, st *state.AnalysisState) error {
	sum, err := table.Profile(st.Table())
	if err != nil {
		return err
	}
	logging.Data("profiled %s: %d rows, %d columns, %d duplicates", sum.Dataset, sum.Rows, sum.Cols, sum.Duplicates)
	for _, col := range sum.Columns {
		logging.DataDebug("column %s: %s, %d missing, %d unique", col.Name, col.Kind, col.Missing, col.Unique)
	}

	if c.llm.Enabled() {
		out, err := c.llm.Call(ctx, NodeSituation, situationSystemPrompt, sum.Text())
		if err != nil {
			st.Note("%s: observations skipped: %v", NodeSituation, err)
		} else {
			sum.Narrative = strings.TrimSpace(out)
		}
	}
	return st.SetSummary(sum)
}

// =============================================================================
// PLANNER
// =============================================================================

// llmPlan accepts either a bare task array or {"tasks": [...]}.
type llmPlan struct {
	Tasks []state.Task `json:"tasks"`
}

// Planner writes the validated plan.
func (c *Crew) Planner(ctx context.Context, st *state.AnalysisState) error {
	sum, err := st.MustSummary(NodePlanner)
	if err != nil {
		return err
	}

	plan := BaselinePlan(sum, c.maxTasks)
	if c.planWithLLM && c.llm.Enabled() {
		if proposed, err := c.planFromLLM(ctx, sum); err != nil {
			st.Note("%s: using baseline plan: %v", NodePlanner, err)
		} else {
			plan = proposed
		}
	}

	kept, dropped := ValidatePlan(sum, plan, c.llm.Enabled())
	for _, d := range dropped {
		logging.Get(logging.CategoryPlanner).Warn("dropped %s", d)
		st.Note("%s: dropped %s", NodePlanner, d)
	}
	if len(kept) == 0 {
		return &types.PlanningError{Reason: "no executable tasks after validation", Dropped: dropped}
	}
	logging.Planner("plan has %d task(s), %d dropped", len(kept), len(dropped))
	for i, t := range kept {
		logging.PlannerDebug("task %d: %s", i, t)
	}
	return st.SetPlan(kept)
}

func (c *Crew) planFromLLM(ctx context.Context, sum *table.Summary) ([]state.Task, error) {
	out, err := c.llm.Call(ctx, NodePlanner, fmt.Sprintf(plannerSystemPrompt, c.maxTasks), plannerPrompt(sum))
	if err != nil {
		return nil, err
	}
	var tasks []state.Task
	if err := llm.ExtractJSON(out, &tasks); err != nil {
		var wrapped llmPlan
		if err2 := llm.ExtractJSON(out, &wrapped); err2 != nil {
			return nil, err
		}
		tasks = wrapped.Tasks
	}
	if len(tasks) == 0 {
		return nil, errors.New("LLM proposed no tasks")
	}
	if len(tasks) > c.maxTasks {
		tasks = tasks[:c.maxTasks]
	}
	return tasks, nil
}

// =============================================================================
// CODER
// =============================================================================

// Coder writes the code for the current task. Template code is the
// baseline; an LLM, when configured, may replace it.
func (c *Crew) Coder(ctx context.Context, st *state.AnalysisState) error {
	task, err := st.CurrentTask(NodeCoder)
	if err != nil {
		return err
	}
	if st.BeginTask() {
		logging.CoderDebug("coding task %d: %s", st.TaskIndex(), task)
	}

	code, ok := RenderTemplate(task)
	source := "template"
	if c.llm.Enabled() {
		out, err := c.llm.Call(ctx, NodeCoder, coderSystemPrompt, coderPrompt(st.Summary(), task, code))
		if err != nil {
			st.Note("%s: task %d: keeping template code: %v", NodeCoder, st.TaskIndex(), err)
		} else if block := llm.ExtractCodeBlock(out); block != "" {
			code, ok = block, true
			source = "llm"
		}
	}
	if !ok {
		st.Note("%s: task %d: no code available for task type %q", NodeCoder, st.TaskIndex(), task.Type)
		code = ""
	} else {
		logging.Coder("task %d: %d bytes of %s code", st.TaskIndex(), len(code), source)
	}
	st.SetCode(code)
	return nil
}

// =============================================================================
// CODE EXECUTION
// =============================================================================

// Execute runs the current code. Success appends a result and advances the
// cursor. A sandbox failure is recorded on the state and returned; the
// cursor stays put.
func (c *Crew) Execute(ctx context.Context, st *state.AnalysisState) error {
	code, err := st.MustCode(NodeExecution)
	if err != nil {
		return err
	}
	if _, err := st.CurrentTask(NodeExecution); err != nil {
		return err
	}
	attempt := st.StartAttempt()

	res, err := c.runner.Execute(ctx, code, st.Table())
	if err != nil {
		var se *types.SandboxRuntimeError
		if !errors.As(err, &se) {
			return err
		}
		st.RecordFailure(state.AttemptError{
			Attempt: attempt,
			Kind:    se.Reason,
			Message: se.Message,
			Code:    code,
		})
		logging.Sandbox("task %d attempt %d failed (%s): %s", st.TaskIndex(), attempt, se.Reason, se.Message)
		return err
	}

	idx := st.TaskIndex()
	if res.Truncated {
		st.Note("%s: task %d: output truncated", NodeExecution, idx)
	}
	if err := st.Advance(state.ExecutionResult{
		Code:     code,
		Stdout:   res.Stdout,
		Charts:   res.Charts,
		Tables:   res.Tables,
		Attempts: attempt,
		Duration: res.Duration,
	}); err != nil {
		return err
	}
	logging.Sandbox("task %d completed on attempt %d in %v", idx, attempt, res.Duration)
	return nil
}

// =============================================================================
// CODE REVISION
// =============================================================================

// Revise replaces the failing code. It never touches the cursor or the
// error count. When no better code can be produced the existing code is
// kept and the next execution consumes another retry.
func (c *Crew) Revise(ctx context.Context, st *state.AnalysisState) error {
	code, err := st.MustCode(NodeRevision)
	if err != nil {
		return err
	}
	task, err := st.CurrentTask(NodeRevision)
	if err != nil {
		return err
	}
	failure := st.LastError()
	if failure == nil {
		return &types.PreconditionError{Node: NodeRevision, Field: "last_error"}
	}

	if c.llm.Enabled() {
		out, err := c.llm.Call(ctx, NodeRevision, revisionSystemPrompt, revisionPrompt(task, code, failure))
		if err != nil {
			st.Note("%s: task %d: keeping failing code: %v", NodeRevision, st.TaskIndex(), err)
			return nil
		}
		if block := llm.ExtractCodeBlock(out); block != "" {
			st.SetCode(block)
		}
		return nil
	}

	if tmpl, ok := RenderTemplate(task); ok && tmpl != code {
		logging.CoderDebug("task %d: reverting to template code", st.TaskIndex())
		st.SetCode(tmpl)
		return nil
	}
	st.Note("%s: task %d: no revision available, retrying unchanged code", NodeRevision, st.TaskIndex())
	return nil
}
