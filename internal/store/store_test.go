package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/analysis"
	"datanerd/internal/graph"
	"datanerd/internal/state"
	"datanerd/internal/table"
	"datanerd/internal/types"
)

func sampleResult(t *testing.T, id string, started time.Time) *graph.RunResult {
	t.Helper()
	sum, err := table.Profile(table.SampleCustomers(20, 1))
	require.NoError(t, err)

	hist := state.Task{Type: "histogram", Params: map[string]any{"column": "age"}, Description: "Histogram of age"}
	return &graph.RunResult{
		RunID:   id,
		Dataset: "customers",
		Status:  graph.StatusCompleted,
		Report:  "# Analysis report: customers\n",
		Summary: sum,
		Plan:    []state.Task{{Type: "basic_info"}, hist},
		Results: []state.ExecutionResult{
			{TaskIndex: 0, Task: state.Task{Type: "basic_info"}, Code: "a", Stdout: "rows\n", Attempts: 1, Duration: 15 * time.Millisecond},
			{
				TaskIndex: 1, Task: hist, Code: "b", Stdout: "hist\n", Attempts: 2, Duration: time.Second,
				Charts: []analysis.Chart{
					{Kind: analysis.ChartHistogram, Title: "age", Labels: []string{"18-30"}, Values: []float64{4}},
					{Kind: analysis.ChartHeatmap, Title: "corr", Matrix: [][]float64{{1, math.NaN()}}},
				},
				Tables: []analysis.TableArtifact{{Title: "t", Header: []string{"a"}, Rows: [][]string{{"1"}}}},
			},
		},
		Failures: []state.AttemptError{
			{TaskIndex: 1, Attempt: 1, Kind: types.ReasonRuntime, Message: "bad column", Code: "x", At: started.Add(time.Second)},
		},
		Notes:      []string{"coder: note"},
		Steps:      10,
		Trace:      []graph.NodeID{graph.Situation, graph.Planner},
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := sampleResult(t, "run-1", started)

	require.NoError(t, s.SaveRun(ctx, res, "/tmp/runs/run-1"))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "customers", got.Dataset)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 2, got.Planned)
	assert.Equal(t, 2, got.Completed)
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, res.Report, got.Report)
	assert.Equal(t, "/tmp/runs/run-1", got.RunDir)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 2*time.Second, got.Duration())

	results, err := s.Results(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "histogram", results[1].TaskType)
	assert.Equal(t, 2, results[1].Charts)
	assert.Equal(t, 1, results[1].Tables)
	assert.Equal(t, time.Second, results[1].Duration)

	failures, err := s.Failures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "runtime", failures[0].Kind)
	assert.Equal(t, "bad column", failures[0].Message)
}

func TestSaveRunReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	res := sampleResult(t, "run-1", time.Now())
	require.NoError(t, s.SaveRun(ctx, res, ""))

	res.Status = graph.StatusRetryExhausted
	res.Incomplete = true
	res.Results = res.Results[:1]
	require.NoError(t, s.SaveRun(ctx, res, ""))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "aborted_retry_exhausted", got.Status)
	assert.True(t, got.Incomplete)
	results, err := s.Results(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestGetRunNotFound(t *testing.T) {
	_, err := openStore(t).GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, sampleResult(t, id, base.Add(time.Duration(i)*time.Hour)), ""))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Empty(t, runs[0].Report)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWriteRunDir(t *testing.T) {
	root := t.TempDir()
	res := sampleResult(t, "run-9", time.Now())

	dir, err := WriteRunDir(root, res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "run-9"), dir)

	report, err := os.ReadFile(filepath.Join(dir, ReportFile))
	require.NoError(t, err)
	assert.Equal(t, res.Report, string(report))

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Shape: 20 rows x 9 columns")

	var manifest map[string]any
	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, "completed", manifest["status"])
	assert.Len(t, manifest["results"], 2)
	assert.Equal(t, []any{"situation_awareness", "planner"}, manifest["trace"])

	for _, name := range []string{"task-01-0.json", "task-01-1.json"} {
		_, err := os.Stat(filepath.Join(dir, "charts", name))
		assert.NoError(t, err, name)
	}
	heat, err := os.ReadFile(filepath.Join(dir, "charts", "task-01-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(heat), "null")
}

func TestEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", EventsFile)
	log, err := NewEventLog(path)
	require.NoError(t, err)

	sink := log.Sink()
	sink(graph.Event{Type: graph.EventNodeStarted, RunID: "r", Node: graph.Coder, Step: 1})
	sink(graph.Event{Type: graph.EventRoute, RunID: "r", Node: graph.Coder, Next: graph.Execution, Step: 1})
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "node_started", lines[0]["type"])
	assert.Equal(t, "coder", lines[0]["node"])
	assert.Equal(t, "code_execution", lines[1]["next"])
}
