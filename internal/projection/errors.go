package projection

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition marks a status change the transition table rejects.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTerminalState marks a non-administrative event applied to a closed task.
	ErrTerminalState = errors.New("terminal state violation")
	// ErrUnknownTask marks an event for a task that was never created.
	ErrUnknownTask = errors.New("unknown task")
	// ErrDuplicateTask marks a second created event for the same task.
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrInvalidPayload marks an event whose fields fail validation.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// ReplayError is a fault found while folding one task. It halts that
// task's replay only.
type ReplayError struct {
	// Kind is one of the Err* sentinels above
	Kind error
	// Seq is the 1-based position of the offending event in the ledger
	Seq     int
	EventID string
	TaskID  string
	// Err is the underlying cause, such as a *transitions.InvalidTransitionError
	Err error
}

func (e *ReplayError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("event %d (%s) on task %s: %v", e.Seq, e.EventID, e.TaskID, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReplayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
