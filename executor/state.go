package executor

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:    {StateRunning, StateCancelled, StateFailed},
	StateRunning: {StateCompleted, StateCancelled, StateFailed},
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EventKind identifies an executor notification.
type EventKind string

const (
	EventRunStarted    EventKind = "run_started"
	EventStageProgress EventKind = "stage_progress"
	EventRunFinished   EventKind = "run_finished"
)

// Event is a lifecycle or progress notification.
type Event struct {
	Kind  EventKind
	RunID string
	// Stage and Operator are set for stage progress.
	Stage    int
	Operator string
	// Records counts the records a stage has emitted, or for RunFinished the
	// records the run has emitted.
	Records int64
	// Done marks the last progress event of a stage.
	Done bool
	// ResumedFrom is the first stage a started run executes.
	ResumedFrom int
	// State, Degraded and Err describe a finished run.
	State    State
	Degraded bool
	Err      error
	At       time.Time
}

// Progress is passed to progress callbacks registered on a run.
type Progress struct {
	Stage    int
	Operator string
	Records  int64
	Done     bool
}
