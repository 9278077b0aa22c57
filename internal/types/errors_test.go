package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
		retry bool
	}{
		{"nil", nil, false, false},
		{"data", &DataError{Reason: "empty table"}, true, false},
		{"planning", &PlanningError{Reason: "no tasks"}, true, false},
		{"precondition", &PreconditionError{Node: "coder", Field: "plan"}, true, false},
		{"wrapped precondition", fmt.Errorf("node coder: %w", &PreconditionError{Field: "plan"}), true, false},
		{"sandbox", &SandboxRuntimeError{Reason: ReasonPanic, Message: "index out of range"}, false, true},
		{"wrapped sandbox", fmt.Errorf("execute: %w", &SandboxRuntimeError{Reason: ReasonTimeout}), false, true},
		{"generation", &GenerationError{Node: "coder", Attempts: 2, Err: errors.New("503")}, false, false},
		{"runaway", &RunawayExecutionError{Steps: 201, Budget: 200}, false, false},
		{"plain", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.retry, IsRetryable(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "data error: no columns", (&DataError{Reason: "no columns"}).Error())
	assert.Equal(t, "planning error: nothing valid (2 tasks dropped)",
		(&PlanningError{Reason: "nothing valid", Dropped: []string{"a", "b"}}).Error())
	assert.Equal(t, "sandbox compile error: 3:1: expected declaration",
		(&SandboxRuntimeError{Reason: ReasonCompile, Message: "3:1: expected declaration"}).Error())
	assert.Equal(t, "precondition failed: report has not been written",
		(&PreconditionError{Field: "report"}).Error())
}

func TestUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &GenerationError{Node: "planner", Attempts: 2, Err: cause}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	serr := &SandboxRuntimeError{Reason: ReasonTimeout, Err: cause}
	assert.ErrorIs(t, serr, context.DeadlineExceeded)
}

func TestLLMClientFunc(t *testing.T) {
	var c LLMClient = LLMClientFunc(func(_ context.Context, sys, user string) (string, error) {
		return sys + "|" + user, nil
	})
	out, err := c.CompleteWithSystem(context.Background(), "s", "u")
	assert.NoError(t, err)
	assert.Equal(t, "s|u", out)
}
