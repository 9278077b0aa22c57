package types

import (
	"errors"
	"fmt"
	"time"
)

// DataError indicates the input table cannot be analyzed (empty table,
// zero columns, unreadable file). Fatal.
type DataError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Reason, e.Err)
	}
	return "data error: " + e.Reason
}

func (e *DataError) Unwrap() error { return e.Err }

// PlanningError indicates no runnable plan could be produced. Fatal.
type PlanningError struct {
	Reason  string
	Dropped []string // descriptions of tasks removed during validation
}

// Error implements the error interface.
func (e *PlanningError) Error() string {
	if len(e.Dropped) > 0 {
		return fmt.Sprintf("planning error: %s (%d tasks dropped)", e.Reason, len(e.Dropped))
	}
	return "planning error: " + e.Reason
}

// GenerationError indicates the LLM collaborator failed after its retry.
// Nodes recover from it locally with a deterministic fallback.
type GenerationError struct {
	Node     string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: generation failed after %d attempt(s): %v", e.Node, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SandboxReason classifies why generated code failed.
type SandboxReason string

const (
	ReasonCompile SandboxReason = "compile"
	ReasonRuntime SandboxReason = "runtime"
	ReasonPanic   SandboxReason = "panic"
	ReasonTimeout SandboxReason = "timeout"
	ReasonPolicy  SandboxReason = "policy"
)

// SandboxRuntimeError is a failed attempt to run generated code. Retryable.
type SandboxRuntimeError struct {
	Reason  SandboxReason
	Message string
	Elapsed time.Duration
	Err     error
}

// Error implements the error interface.
func (e *SandboxRuntimeError) Error() string {
	return fmt.Sprintf("sandbox %s error: %s", e.Reason, e.Message)
}

func (e *SandboxRuntimeError) Unwrap() error { return e.Err }

// RunawayExecutionError is raised when a run exceeds its step budget.
type RunawayExecutionError struct {
	Steps    int
	Budget   int
	LastNode string
}

// Error implements the error interface.
func (e *RunawayExecutionError) Error() string {
	return fmt.Sprintf("runaway execution: %d steps exceeds budget %d (last node %s)", e.Steps, e.Budget, e.LastNode)
}

// PreconditionError indicates a node read a state field that has not been
// written yet. Fatal; it means the graph was wired incorrectly.
type PreconditionError struct {
	Node  string
	Field string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("precondition failed: %s has not been written", e.Field)
	}
	return fmt.Sprintf("precondition failed in %s: %s has not been written", e.Node, e.Field)
}

// IsFatal reports whether err halts a run immediately rather than
// consuming a retry.
func IsFatal(err error) bool {
	var de *DataError
	var pe *PlanningError
	var pre *PreconditionError
	return errors.As(err, &de) || errors.As(err, &pe) || errors.As(err, &pre)
}

// IsRetryable reports whether err is a failed code attempt that the
// revision loop may recover from.
func IsRetryable(err error) bool {
	var se *SandboxRuntimeError
	return errors.As(err, &se)
}
