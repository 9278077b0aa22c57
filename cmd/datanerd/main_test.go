package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/config"
	"datanerd/internal/graph"
	"datanerd/internal/store"
	"datanerd/internal/table"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DATANERD_DB", "")
	t.Setenv("DATANERD_MAX_RETRIES", "")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", "", "--no-llm"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeSample writes a synthetic dataset and returns its path.
func writeSample(t *testing.T, dir string, rows int) string {
	t.Helper()
	path := filepath.Join(dir, "customers.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, table.WriteCSV(f, table.SampleCustomers(rows, 7)))
	require.NoError(t, f.Close())
	return path
}

// archiveConfig writes a config whose archive lives under dir.
func archiveConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.DatabasePath = filepath.Join(dir, "runs.db")
	cfg.Store.RunsDir = filepath.Join(dir, "runs")
	path := filepath.Join(dir, "datanerd.toml")
	require.NoError(t, cfg.Save(path))
	return path
}

func TestSampleCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "data", "sample.csv")

	_, stderr, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "sample", "-n", "25", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote 25 rows")

	tbl, err := table.LoadCSV(out)
	require.NoError(t, err)
	assert.Equal(t, 25, tbl.Rows())
	assert.Equal(t, 9, tbl.NumCols())
}

func TestSummarizeCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, 30)

	stdout, _, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "summarize", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Shape: 30 rows x 9 columns")
}

func TestRunWithoutArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, 60)
	report := filepath.Join(dir, "out", "report.md")

	_, stderr, err := execute(t, "--config", filepath.Join(dir, "none.yaml"),
		"run", path, "--no-store", "--max-tasks", "3", "-o", report)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "completed")

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Analysis report: customers")
}

func TestRunArchivesAndListsRuns(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, 40)
	cfgPath := archiveConfig(t, dir)

	_, _, err := execute(t, "--config", cfgPath, "run", path, "--max-tasks", "2")
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	recs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.Len(t, recs, 1)
	id := recs[0].ID
	assert.Equal(t, string(graph.StatusCompleted), recs[0].Status)
	assert.FileExists(t, filepath.Join(dir, "runs", id, store.ReportFile))
	assert.FileExists(t, filepath.Join(dir, "runs", id, store.EventsFile))

	stdout, _, err := execute(t, "--config", cfgPath, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, id)

	stdout, _, err = execute(t, "--config", cfgPath, "runs", "show", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "status:   completed")
	assert.Contains(t, stdout, "# Analysis report: customers")

	_, _, err = execute(t, "--config", cfgPath, "runs", "show", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunExportsSpans(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, 30)
	traces := filepath.Join(dir, "traces", "spans.json")

	cfg := config.DefaultConfig()
	cfg.Tracing.File = traces
	cfgPath := filepath.Join(dir, "datanerd.yaml")
	require.NoError(t, cfg.Save(cfgPath))

	_, stderr, err := execute(t, "--config", cfgPath, "--trace",
		"run", path, "--no-store", "--max-tasks", "1")
	require.NoError(t, err, stderr)

	data, err := os.ReadFile(traces)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"analysis.run"`)
	assert.Contains(t, string(data), `"Name":"node.situation_awareness"`)
	assert.Contains(t, string(data), `"Name":"node.reviewer"`)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	inputs := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(inputs, 0755))
	for _, name := range []string{"a.csv", "b.csv"} {
		f, err := os.Create(filepath.Join(inputs, name))
		require.NoError(t, err)
		require.NoError(t, table.WriteCSV(f, table.SampleCustomers(20, 3)))
		require.NoError(t, f.Close())
	}

	stdout, _, err := execute(t, "--config", filepath.Join(dir, "none.yaml"),
		"batch", inputs, "--no-store", "--max-tasks", "1", "-p", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(stdout, "completed"), stdout)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datanerd.yaml")

	stdout, _, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)

	_, _, err = execute(t, "--config", path, "config", "init")
	assert.Error(t, err)

	_, _, err = execute(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"x.csv", "y.txt", "z.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("a\n1\n"), 0644))
	}
	single := filepath.Join(dir, "y.txt")

	files, err := expandInputs([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "x.csv"), filepath.Join(dir, "z.csv"), single}, files)

	_, err = expandInputs([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestTeeSinks(t *testing.T) {
	assert.Nil(t, teeSinks(nil, nil))

	var a, b int
	sink := teeSinks(func(graph.Event) { a++ }, nil, func(graph.Event) { b++ })
	sink(graph.Event{})
	sink(graph.Event{})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestStatusStyle(t *testing.T) {
	assert.Equal(t, okStyle.GetForeground(), statusStyle(graph.StatusCompleted).GetForeground())
	assert.Equal(t, warnStyle.GetForeground(), statusStyle(graph.StatusRetryExhausted).GetForeground())
	assert.Equal(t, errorStyle.GetForeground(), statusStyle(graph.StatusFatalPrecondition).GetForeground())
}
