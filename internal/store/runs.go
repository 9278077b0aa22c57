// Package store archives finished runs: a SQLite index of runs, task
// results and failed attempts, plus a directory of artifacts per run.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"datanerd/internal/graph"
	"datanerd/internal/logging"
)

const schemaVersion = 1

// ErrNotFound is returned when a run is not in the archive.
var ErrNotFound = errors.New("run not found")

// RunRecord is one archived run.
type RunRecord struct {
	ID         string    `json:"id"`
	Dataset    string    `json:"dataset"`
	Status     string    `json:"status"`
	Incomplete bool      `json:"incomplete"`
	Steps      int       `json:"steps"`
	Planned    int       `json:"planned"`
	Completed  int       `json:"completed"`
	Failures   int       `json:"failures"`
	Error      string    `json:"error,omitempty"`
	Report     string    `json:"report,omitempty"`
	RunDir     string    `json:"run_dir,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall-clock length of the run.
func (r RunRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// ResultRecord is one completed task of an archived run.
type ResultRecord struct {
	RunID       string        `json:"run_id"`
	TaskIndex   int           `json:"task_index"`
	TaskType    string        `json:"task_type"`
	Description string        `json:"description,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	Charts      int           `json:"charts"`
	Tables      int           `json:"tables"`
	Code        string        `json:"code"`
	Stdout      string        `json:"stdout"`
}

// FailureRecord is one failed attempt of an archived run.
type FailureRecord struct {
	RunID     string    `json:"run_id"`
	TaskIndex int       `json:"task_index"`
	Attempt   int       `json:"attempt"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// FromResult flattens a run result into archive records.
func FromResult(res *graph.RunResult, runDir string) (RunRecord, []ResultRecord, []FailureRecord) {
	run := RunRecord{
		ID:         res.RunID,
		Dataset:    res.Dataset,
		Status:     string(res.Status),
		Incomplete: res.Incomplete,
		Steps:      res.Steps,
		Planned:    len(res.Plan),
		Completed:  len(res.Results),
		Failures:   len(res.Failures),
		Error:      res.Error(),
		Report:     res.Report,
		RunDir:     runDir,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}

	results := make([]ResultRecord, 0, len(res.Results))
	for _, r := range res.Results {
		results = append(results, ResultRecord{
			RunID:       res.RunID,
			TaskIndex:   r.TaskIndex,
			TaskType:    r.Task.Type,
			Description: r.Task.Description,
			Attempts:    r.Attempts,
			Duration:    r.Duration,
			Charts:      len(r.Charts),
			Tables:      len(r.Tables),
			Code:        r.Code,
			Stdout:      r.Stdout,
		})
	}

	failures := make([]FailureRecord, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, FailureRecord{
			RunID:     res.RunID,
			TaskIndex: f.TaskIndex,
			Attempt:   f.Attempt,
			Kind:      string(f.Kind),
			Message:   f.Message,
			At:        f.At,
		})
	}
	return run, results, failures
}

// Store is the run archive.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the archive at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Store("run archive opened at %s", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		status TEXT NOT NULL,
		incomplete INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL,
		planned INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		error TEXT,
		report TEXT,
		run_dir TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		task_index INTEGER NOT NULL,
		task_type TEXT NOT NULL,
		description TEXT,
		attempts INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		charts INTEGER NOT NULL,
		tables INTEGER NOT NULL,
		code TEXT NOT NULL,
		stdout TEXT NOT NULL,
		PRIMARY KEY (run_id, task_index)
	);

	CREATE TABLE IF NOT EXISTS failures (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		task_index INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// SaveRun archives res in one transaction. Saving the same run again
// replaces it.
func (s *Store) SaveRun(ctx context.Context, res *graph.RunResult, runDir string) error {
	run, results, failures := FromResult(res, runDir)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM results WHERE run_id = ?",
		"DELETE FROM failures WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, run.ID); err != nil {
			return fmt.Errorf("failed to clear run %s: %w", run.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, dataset, status, incomplete, steps, planned, completed, failures,
			error, report, run_dir, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, run.Status, boolInt(run.Incomplete), run.Steps, run.Planned,
		run.Completed, run.Failures, run.Error, run.Report, run.RunDir,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO results (run_id, task_index, task_type, description, attempts, duration_ms,
				charts, tables, code, stdout)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.TaskIndex, r.TaskType, r.Description, r.Attempts, r.Duration.Milliseconds(),
			r.Charts, r.Tables, r.Code, r.Stdout)
		if err != nil {
			return fmt.Errorf("failed to insert result %d: %w", r.TaskIndex, err)
		}
	}

	for _, f := range failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO failures (run_id, task_index, attempt, kind, message, at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			f.RunID, f.TaskIndex, f.Attempt, f.Kind, f.Message, formatTime(f.At))
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	logging.Store("archived run %s (%s, %d results, %d failures)", run.ID, run.Status, len(results), len(failures))
	return nil
}

const runColumns = `id, dataset, status, incomplete, steps, planned, completed, failures,
	COALESCE(error, ''), COALESCE(report, ''), COALESCE(run_dir, ''), started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var r RunRecord
	var incomplete int
	var started, finished string
	err := row.Scan(&r.ID, &r.Dataset, &r.Status, &incomplete, &r.Steps, &r.Planned,
		&r.Completed, &r.Failures, &r.Error, &r.Report, &r.RunDir, &started, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	r.Incomplete = incomplete != 0
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// GetRun returns one run, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
// Reports are omitted.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Report = ""
		out = append(out, r)
	}
	return out, rows.Err()
}

// Results returns the completed tasks of a run in task order.
func (s *Store) Results(ctx context.Context, runID string) ([]ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_index, task_type, COALESCE(description, ''), attempts, duration_ms,
			charts, tables, code, stdout
		FROM results WHERE run_id = ? ORDER BY task_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var r ResultRecord
		var ms int64
		if err := rows.Scan(&r.RunID, &r.TaskIndex, &r.TaskType, &r.Description, &r.Attempts, &ms,
			&r.Charts, &r.Tables, &r.Code, &r.Stdout); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Failures returns the failed attempts of a run in the order they happened.
func (s *Store) Failures(ctx context.Context, runID string) ([]FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_index, attempt, kind, message, at
		FROM failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var at string
		if err := rows.Scan(&f.RunID, &f.TaskIndex, &f.Attempt, &f.Kind, &f.Message, &at); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.At = parseTime(at)
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
