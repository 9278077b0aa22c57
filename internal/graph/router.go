// Package graph drives an analysis run: a fixed set of nodes over one
// shared state, a pure router choosing the next node, and an engine loop
// bounded by retries and a step budget.
package graph

import (
	"datanerd/internal/state"
)

// NodeID identifies a node or a terminal outcome.
type NodeID int

const (
	Situation NodeID = iota
	Planner
	Coder
	Execution
	Revision
	Reporter
	Reviewer
	// Terminate ends the run successfully.
	Terminate
	// Abort ends the run after retries were exhausted.
	Abort
)

var nodeNames = [...]string{
	Situation: "situation_awareness",
	Planner:   "planner",
	Coder:     "coder",
	Execution: "code_execution",
	Revision:  "code_revision",
	Reporter:  "reporter",
	Reviewer:  "reviewer",
	Terminate: "terminate",
	Abort:     "abort",
}

func (n NodeID) String() string {
	if n < 0 || int(n) >= len(nodeNames) {
		return "unknown"
	}
	return nodeNames[n]
}

// Terminal reports whether n ends the run.
func (n NodeID) Terminal() bool { return n == Terminate || n == Abort }

// MarshalText renders the node by name.
func (n NodeID) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

// Route picks the node that follows last. It reads st but never mutates
// it, so the same state always yields the same decision.
func Route(last NodeID, st *state.AnalysisState, maxRetries int) NodeID {
	switch last {
	case Situation:
		return Planner
	case Planner:
		return Coder
	case Coder:
		return Execution
	case Execution:
		if st.Succeeded() {
			if st.Done() {
				return Reporter
			}
			return Coder
		}
		if st.ErrorCount() < maxRetries {
			return Revision
		}
		return Abort
	case Revision:
		return Execution
	case Reporter:
		return Reviewer
	case Reviewer:
		return Terminate
	}
	return Abort
}
