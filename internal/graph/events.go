package graph

import "time"

// Event types.
const (
	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"
	EventRoute         = "route"
	EventRunCompleted  = "run_completed"
)

// Event describes one step of a run.
type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Node       NodeID    `json:"node"`
	Next       NodeID    `json:"next,omitempty"`
	Step       int       `json:"step"`
	TaskIndex  int       `json:"task_index"`
	ErrorCount int       `json:"error_count"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventSink receives events synchronously from the run loop. It must not
// block for long.
type EventSink func(Event)
