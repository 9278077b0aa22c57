// Package state holds the shared mutable state of one analysis run.
//
// A state is created per run, owned by the orchestrator and handed to one
// node at a time. Fields start absent; reading an absent field through an
// accessor yields a *types.PreconditionError. The task cursor only moves
// forward, through Advance.
package state

import (
	"fmt"
	"time"

	"datanerd/internal/analysis"
	"datanerd/internal/table"
	"datanerd/internal/types"
)

// Task is one unit of analysis work.
type Task struct {
	Type        string         `json:"task_type"`
	Params      map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Column returns the "column" parameter, if any.
func (t Task) Column() string {
	if s, ok := t.Params["column"].(string); ok {
		return s
	}
	return ""
}

// Columns returns every column the task references: "column", "x", "y",
// "by", "value" and the "columns" list.
func (t Task) Columns() []string {
	var out []string
	for _, key := range []string{"column", "x", "y", "by", "value"} {
		if s, ok := t.Params[key].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	switch v := t.Params["columns"].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, c := range v {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// String renders the task for logs and prompts.
func (t Task) String() string {
	if t.Description != "" {
		return fmt.Sprintf("%s: %s", t.Type, t.Description)
	}
	if cols := t.Columns(); len(cols) > 0 {
		return fmt.Sprintf("%s %v", t.Type, cols)
	}
	return t.Type
}

// ExecutionResult is the artifact of a successfully executed task.
type ExecutionResult struct {
	TaskIndex int                      `json:"task_index"`
	Task      Task                     `json:"task"`
	Code      string                   `json:"code"`
	Stdout    string                   `json:"stdout"`
	Charts    []analysis.Chart         `json:"charts,omitempty"`
	Tables    []analysis.TableArtifact `json:"tables,omitempty"`
	Attempts  int                      `json:"attempts"`
	Duration  time.Duration            `json:"duration"`
}

// AttemptError records one failed execution attempt.
type AttemptError struct {
	TaskIndex int                 `json:"task_index"`
	Attempt   int                 `json:"attempt"`
	Kind      types.SandboxReason `json:"kind"`
	Message   string              `json:"message"`
	Code      string              `json:"code"`
	At        time.Time           `json:"at"`
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	return fmt.Sprintf("task %d attempt %d: %s: %s", e.TaskIndex, e.Attempt, e.Kind, e.Message)
}

type field uint8

const (
	fieldSummary field = 1 << iota
	fieldPlan
	fieldCode
	fieldReport
)

var fieldNames = map[field]string{
	fieldSummary: "data_summary",
	fieldPlan:    "plan",
	fieldCode:    "code_string",
	fieldReport:  "report",
}

// AnalysisState is the shared state of one run.
type AnalysisState struct {
	table   *table.Table
	summary *table.Summary
	plan    []Task
	code    string
	report  string

	taskIndex  int
	errorCount int
	maxRetries int
	codedTask  int
	attempts   int

	lastError *AttemptError
	results   []ExecutionResult
	failures  []AttemptError
	notes     []string

	written field
}

// New creates the state for a run over t.
func New(t *table.Table, maxRetries int) *AnalysisState {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &AnalysisState{table: t, maxRetries: maxRetries, codedTask: -1}
}

func (s *AnalysisState) has(f field) bool { return s.written&f != 0 }

func (s *AnalysisState) missing(node string, f field) error {
	return &types.PreconditionError{Node: node, Field: fieldNames[f]}
}

// Table returns the input table.
func (s *AnalysisState) Table() *table.Table { return s.table }

// SetSummary writes the data summary. It may be written once.
func (s *AnalysisState) SetSummary(sum *table.Summary) error {
	if s.has(fieldSummary) {
		return fmt.Errorf("data_summary already written")
	}
	s.summary = sum
	s.written |= fieldSummary
	return nil
}

// Summary returns the data summary or nil when unwritten.
func (s *AnalysisState) Summary() *table.Summary { return s.summary }

// MustSummary returns the summary or a PreconditionError.
func (s *AnalysisState) MustSummary(node string) (*table.Summary, error) {
	if !s.has(fieldSummary) {
		return nil, s.missing(node, fieldSummary)
	}
	return s.summary, nil
}

// SetPlan writes the plan and positions the cursor at its first task. It
// may be written once.
func (s *AnalysisState) SetPlan(plan []Task) error {
	if s.has(fieldPlan) {
		return fmt.Errorf("plan already written")
	}
	s.plan = append([]Task(nil), plan...)
	s.taskIndex = 0
	s.written |= fieldPlan
	return nil
}

// Plan returns a copy of the plan (nil when unwritten).
func (s *AnalysisState) Plan() []Task { return append([]Task(nil), s.plan...) }

// MustPlan returns the plan or a PreconditionError.
func (s *AnalysisState) MustPlan(node string) ([]Task, error) {
	if !s.has(fieldPlan) {
		return nil, s.missing(node, fieldPlan)
	}
	return s.Plan(), nil
}

// PlanLen returns the plan length (0 when unwritten).
func (s *AnalysisState) PlanLen() int { return len(s.plan) }

// CurrentTask returns the task under the cursor. It fails when the plan is
// unwritten or the cursor is past the end.
func (s *AnalysisState) CurrentTask(node string) (Task, error) {
	if !s.has(fieldPlan) {
		return Task{}, s.missing(node, fieldPlan)
	}
	if s.taskIndex >= len(s.plan) {
		return Task{}, &types.PreconditionError{Node: node, Field: fmt.Sprintf("plan[%d]", s.taskIndex)}
	}
	return s.plan[s.taskIndex], nil
}

// BeginTask prepares the retry counters for coding the current task. When
// the cursor has moved to a task not coded before, the error count and last
// error are reset. It reports whether this is a new task.
func (s *AnalysisState) BeginTask() bool {
	if s.codedTask == s.taskIndex {
		return false
	}
	s.codedTask = s.taskIndex
	s.errorCount = 0
	s.attempts = 0
	s.lastError = nil
	return true
}

// SetCode writes the code to execute next.
func (s *AnalysisState) SetCode(code string) {
	s.code = code
	s.written |= fieldCode
}

// Code returns the current code ("" when unwritten).
func (s *AnalysisState) Code() string { return s.code }

// MustCode returns the code or a PreconditionError.
func (s *AnalysisState) MustCode(node string) (string, error) {
	if !s.has(fieldCode) {
		return "", s.missing(node, fieldCode)
	}
	return s.code, nil
}

// StartAttempt counts an execution attempt for the current task and
// returns its 1-based number.
func (s *AnalysisState) StartAttempt() int {
	s.attempts++
	return s.attempts
}

// Advance records the successful result of the current task and moves the
// cursor forward. The error count and last error are reset.
func (s *AnalysisState) Advance(res ExecutionResult) error {
	if !s.has(fieldPlan) {
		return s.missing("advance", fieldPlan)
	}
	if s.taskIndex >= len(s.plan) {
		return fmt.Errorf("cannot advance past end of plan (index %d, %d tasks)", s.taskIndex, len(s.plan))
	}
	res.TaskIndex = s.taskIndex
	res.Task = s.plan[s.taskIndex]
	if res.Attempts == 0 {
		res.Attempts = s.attempts
	}
	s.results = append(s.results, res)
	s.taskIndex++
	s.errorCount = 0
	s.attempts = 0
	s.lastError = nil
	return nil
}

// RecordFailure attaches a failed attempt to the state: it becomes the last
// error, is appended to the audit trail, and the error count increments
// (capped at the retry limit).
func (s *AnalysisState) RecordFailure(e AttemptError) {
	e.TaskIndex = s.taskIndex
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Attempt == 0 {
		e.Attempt = s.attempts
	}
	s.failures = append(s.failures, e)
	s.lastError = &e
	if s.errorCount < s.maxRetries {
		s.errorCount++
	}
}

// SetReport writes the report. Later writes overwrite it (the reviewer
// polishes the reporter's draft).
func (s *AnalysisState) SetReport(r string) {
	s.report = r
	s.written |= fieldReport
}

// Report returns the report ("" when unwritten).
func (s *AnalysisState) Report() string { return s.report }

// HasReport reports whether a report has been written.
func (s *AnalysisState) HasReport() bool { return s.has(fieldReport) }

// MustReport returns the report or a PreconditionError.
func (s *AnalysisState) MustReport(node string) (string, error) {
	if !s.has(fieldReport) {
		return "", s.missing(node, fieldReport)
	}
	return s.report, nil
}

// Note records a non-fatal warning.
func (s *AnalysisState) Note(format string, args ...interface{}) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// TaskIndex returns the cursor.
func (s *AnalysisState) TaskIndex() int { return s.taskIndex }

// ErrorCount returns failed attempts on the current task.
func (s *AnalysisState) ErrorCount() int { return s.errorCount }

// MaxRetries returns the retry limit.
func (s *AnalysisState) MaxRetries() int { return s.maxRetries }

// LastError returns the most recent failed attempt on the current task,
// or nil when the last execution succeeded.
func (s *AnalysisState) LastError() *AttemptError {
	if s.lastError == nil {
		return nil
	}
	e := *s.lastError
	return &e
}

// Succeeded reports whether the last execution succeeded.
func (s *AnalysisState) Succeeded() bool { return s.lastError == nil }

// Done reports whether every task in the plan has completed.
func (s *AnalysisState) Done() bool {
	return s.has(fieldPlan) && s.taskIndex == len(s.plan)
}

// Results returns a copy of completed task results.
func (s *AnalysisState) Results() []ExecutionResult {
	return append([]ExecutionResult(nil), s.results...)
}

// Failures returns a copy of every failed attempt.
func (s *AnalysisState) Failures() []AttemptError {
	return append([]AttemptError(nil), s.failures...)
}

// Notes returns a copy of the recorded warnings.
func (s *AnalysisState) Notes() []string {
	return append([]string(nil), s.notes...)
}

// ChartPath returns the archive-relative path of chart n of a task.
func ChartPath(taskIndex, n int) string {
	return fmt.Sprintf("charts/task-%02d-%d.json", taskIndex, n)
}
