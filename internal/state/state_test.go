package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/table"
	"datanerd/internal/types"
)

func newState(t *testing.T, tasks int) *AnalysisState {
	t.Helper()
	st := New(table.SampleCustomers(10, 1), 3)
	plan := make([]Task, tasks)
	for i := range plan {
		plan[i] = Task{Type: "basic_info"}
	}
	require.NoError(t, st.SetPlan(plan))
	return st
}

func TestAccessorsBeforeWrite(t *testing.T) {
	st := New(table.SampleCustomers(5, 1), 3)

	var pe *types.PreconditionError
	_, err := st.MustSummary("planner")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "data_summary", pe.Field)
	assert.Equal(t, "planner", pe.Node)

	_, err = st.MustPlan("coder")
	assert.ErrorAs(t, err, &pe)
	_, err = st.CurrentTask("coder")
	assert.ErrorAs(t, err, &pe)
	_, err = st.MustCode("executor")
	assert.ErrorAs(t, err, &pe)
	_, err = st.MustReport("reviewer")
	assert.ErrorAs(t, err, &pe)
	assert.True(t, types.IsFatal(err))

	assert.False(t, st.Done())
	assert.False(t, st.HasReport())
}

func TestWriteOnceFields(t *testing.T) {
	st := New(table.SampleCustomers(5, 1), 3)
	require.NoError(t, st.SetSummary(&table.Summary{Rows: 5}))
	assert.Error(t, st.SetSummary(&table.Summary{Rows: 6}))

	require.NoError(t, st.SetPlan([]Task{{Type: "basic_info"}}))
	assert.Error(t, st.SetPlan(nil))
	assert.Equal(t, 0, st.TaskIndex())
}

func TestAdvanceIsMonotoneAndBounded(t *testing.T) {
	st := newState(t, 2)

	prev := st.TaskIndex()
	for i := 0; i < 2; i++ {
		st.BeginTask()
		st.StartAttempt()
		require.NoError(t, st.Advance(ExecutionResult{Stdout: "ok"}))
		assert.Equal(t, prev+1, st.TaskIndex())
		prev = st.TaskIndex()
	}
	assert.True(t, st.Done())
	assert.Error(t, st.Advance(ExecutionResult{}), "cannot pass the end of the plan")
	assert.Equal(t, 2, st.TaskIndex())

	results := st.Results()
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].TaskIndex)
	assert.Equal(t, 1, results[1].TaskIndex)
	assert.Equal(t, 1, results[0].Attempts)
}

func TestRecordFailureCapsErrorCount(t *testing.T) {
	st := newState(t, 1)
	st.BeginTask()

	for i := 1; i <= 5; i++ {
		st.StartAttempt()
		st.RecordFailure(AttemptError{Kind: types.ReasonRuntime, Message: "boom", Code: "x"})
		want := i
		if want > st.MaxRetries() {
			want = st.MaxRetries()
		}
		assert.Equal(t, want, st.ErrorCount())
	}

	assert.Len(t, st.Failures(), 5)
	last := st.LastError()
	require.NotNil(t, last)
	assert.Equal(t, 5, last.Attempt)
	assert.Equal(t, 0, last.TaskIndex)
	assert.False(t, last.At.IsZero())
	assert.False(t, st.Succeeded())
}

func TestBeginTaskResetsOnlyForNewTask(t *testing.T) {
	st := newState(t, 2)

	assert.True(t, st.BeginTask())
	st.StartAttempt()
	st.RecordFailure(AttemptError{Message: "first"})
	assert.Equal(t, 1, st.ErrorCount())

	// Re-coding the same task keeps the count.
	assert.False(t, st.BeginTask())
	assert.Equal(t, 1, st.ErrorCount())

	st.StartAttempt()
	require.NoError(t, st.Advance(ExecutionResult{}))
	assert.Equal(t, 0, st.ErrorCount())
	assert.Nil(t, st.LastError())

	assert.True(t, st.BeginTask())
	assert.Equal(t, 0, st.ErrorCount())
}

func TestLastErrorIsACopy(t *testing.T) {
	st := newState(t, 1)
	st.BeginTask()
	st.RecordFailure(AttemptError{Message: "orig"})

	le := st.LastError()
	le.Message = "changed"
	assert.Equal(t, "orig", st.LastError().Message)
}

func TestTaskColumns(t *testing.T) {
	task := Task{Type: "scatter", Params: map[string]any{
		"x":       "age",
		"y":       "income",
		"columns": []any{"a", 3, "b"},
	}}
	assert.Equal(t, []string{"age", "income", "a", "b"}, task.Columns())
	assert.Empty(t, task.Column())
	assert.Equal(t, "scatter [age income a b]", task.String())

	assert.Equal(t, "histogram", Task{Type: "histogram"}.String())
	assert.Equal(t, "charts/task-03-1.json", ChartPath(3, 1))
}

func TestNotes(t *testing.T) {
	st := New(nil, 0)
	assert.Equal(t, 1, st.MaxRetries())
	st.Note("dropped %s", "x")
	assert.Equal(t, []string{"dropped x"}, st.Notes())
}
