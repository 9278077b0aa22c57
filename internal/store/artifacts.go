package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"datanerd/internal/graph"
	"datanerd/internal/logging"
	"datanerd/internal/state"
	"datanerd/internal/table"
)

// Artifact file names inside a run directory.
const (
	ReportFile  = "report.md"
	ResultsFile = "results.json"
	SummaryFile = "summary.txt"
	EventsFile  = "events.jsonl"
)

// runManifest is the JSON written to results.json.
type runManifest struct {
	RunID      string                  `json:"run_id"`
	Dataset    string                  `json:"dataset"`
	Status     graph.Status            `json:"status"`
	Incomplete bool                    `json:"incomplete"`
	Error      string                  `json:"error,omitempty"`
	Steps      int                     `json:"steps"`
	Trace      []graph.NodeID          `json:"trace"`
	Summary    *table.Summary          `json:"summary,omitempty"`
	Plan       []state.Task            `json:"plan"`
	Results    []state.ExecutionResult `json:"results"`
	Failures   []state.AttemptError    `json:"failures,omitempty"`
	Notes      []string                `json:"notes,omitempty"`
}

// RunDir returns the directory of a run under root.
func RunDir(root, runID string) string {
	return filepath.Join(root, runID)
}

// WriteRunDir writes the artifacts of res under root/<run id> and returns
// that directory: the report, a JSON manifest, the data summary and one
// JSON descriptor per chart.
func WriteRunDir(root string, res *graph.RunResult) (string, error) {
	dir := RunDir(root, res.RunID)
	if err := os.MkdirAll(filepath.Join(dir, "charts"), 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ReportFile), []byte(res.Report), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	manifest := runManifest{
		RunID:      res.RunID,
		Dataset:    res.Dataset,
		Status:     res.Status,
		Incomplete: res.Incomplete,
		Error:      res.Error(),
		Steps:      res.Steps,
		Trace:      res.Trace,
		Summary:    res.Summary,
		Plan:       res.Plan,
		Results:    res.Results,
		Failures:   res.Failures,
		Notes:      res.Notes,
	}
	if err := writeJSON(filepath.Join(dir, ResultsFile), manifest); err != nil {
		return "", err
	}

	if res.Summary != nil {
		if err := os.WriteFile(filepath.Join(dir, SummaryFile), []byte(res.Summary.Text()), 0644); err != nil {
			return "", fmt.Errorf("failed to write summary: %w", err)
		}
	}

	charts := 0
	for _, r := range res.Results {
		for n, c := range r.Charts {
			if err := writeJSON(filepath.Join(dir, filepath.FromSlash(state.ChartPath(r.TaskIndex, n))), c); err != nil {
				return "", err
			}
			charts++
		}
	}
	logging.Store("wrote run %s to %s (%d charts)", res.RunID, dir, charts)
	return dir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// EventLog appends run events to a JSON-lines file.
type EventLog struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	err  error
	path string
}

// NewEventLog opens path for appending.
func NewEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &EventLog{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Sink returns an event sink writing to the log. Write errors are kept
// and reported by Close; later events are dropped.
func (l *EventLog) Sink() graph.EventSink {
	return func(ev graph.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.err != nil {
			return
		}
		if err := l.enc.Encode(ev); err != nil {
			l.err = err
			logging.Get(logging.CategoryStore).Warn("event log %s: %v", l.path, err)
		}
	}
}

// Close closes the file and returns the first write error, if any.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cerr := l.f.Close()
	if l.err != nil {
		return l.err
	}
	return cerr
}
