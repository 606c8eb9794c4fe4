// Package projection folds an ordered ledger into task state and renders
// the canonical task board.
//
// The fold is event sourcing in its plainest form: a task's state is the
// result of applying its events in log order, and nothing else. Render is
// a pure function of the event sequence apart from one generated-at line.
package projection

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/transitions"
	"github.com/steveyegge/tally/internal/types"
)

// TaskState is the projected state of one task. It exists only for the
// duration of a projection and is never persisted on its own.
type TaskState struct {
	TaskID    string
	Title     string
	Status    types.Status
	Owner     string
	Priority  int
	UpdatedAt time.Time
	Closed    bool
	History   []HistoryEntry
}

// HistoryEntry summarizes one applied event.
type HistoryEntry struct {
	Seq       int
	EventID   string
	Type      events.EventType
	Timestamp time.Time
	Actor     string
	Summary   string
}

// Projection is the result of folding a ledger.
type Projection struct {
	// Tasks maps task_id to its state. Faulted tasks keep the state reached
	// before the fault.
	Tasks map[string]*TaskState
	// Faults lists replay faults in ledger order.
	Faults []*ReplayError
	// EventCount is the number of events folded.
	EventCount int
	// Digest identifies the exact event sequence (see Digest).
	Digest string
}

// Project folds events in order. A fault stops replay of the affected task;
// later events for that task are not applied, and every other task is
// folded normally.
func Project(evs []*events.TaskEvent) *Projection {
	p := &Projection{
		Tasks:      make(map[string]*TaskState),
		EventCount: len(evs),
		Digest:     Digest(evs),
	}
	halted := make(map[string]bool)

	for i, ev := range evs {
		seq := i + 1
		if ev == nil {
			p.Faults = append(p.Faults, &ReplayError{Kind: ErrInvalidPayload, Seq: seq})
			continue
		}
		if halted[ev.TaskID] {
			slog.Debug("skipping event for halted task", "seq", seq, "task_id", ev.TaskID, "event_id", ev.ID)
			continue
		}
		if fault := p.apply(ev, seq); fault != nil {
			slog.Debug("replay fault", "seq", seq, "task_id", ev.TaskID, "error", fault)
			p.Faults = append(p.Faults, fault)
			halted[ev.TaskID] = true
		}
	}

	return p
}

func (p *Projection) apply(ev *events.TaskEvent, seq int) *ReplayError {
	fault := func(kind, err error) *ReplayError {
		return &ReplayError{Kind: kind, Seq: seq, EventID: ev.ID, TaskID: ev.TaskID, Err: err}
	}

	if err := ev.Validate(); err != nil {
		return fault(ErrInvalidPayload, err)
	}

	st, exists := p.Tasks[ev.TaskID]

	if ev.Type == events.EventTypeCreated {
		if exists {
			return fault(ErrDuplicateTask, nil)
		}
		st = &TaskState{
			TaskID:   ev.TaskID,
			Title:    ev.PayloadString(events.FieldTitle),
			Status:   types.StatusOpen,
			Owner:    ev.PayloadString(events.FieldOwner),
			Priority: types.DefaultPriority,
		}
		if s := ev.PayloadString(events.FieldStatus); s != "" {
			st.Status = types.Status(s)
		}
		if prio, ok, _ := ev.PayloadPriority(); ok {
			st.Priority = prio
		}
		p.Tasks[ev.TaskID] = st
		st.record(ev, seq)
		return nil
	}

	if !exists {
		return fault(ErrUnknownTask, nil)
	}
	if st.Closed && !ev.Type.IsAdministrative() {
		return fault(ErrTerminalState, nil)
	}
	// A done task that is not yet closed still accepts comments and the
	// closing event; status changes are rejected by the transition table.
	if st.Status.IsTerminal() && ev.Type == events.EventTypeReassigned {
		return fault(ErrTerminalState, nil)
	}

	switch ev.Type {
	case events.EventTypeStatusChanged:
		to := types.Status(ev.PayloadString(events.FieldStatus))
		if err := transitions.Check(st.Status, to); err != nil {
			return fault(ErrInvalidTransition, err)
		}
		st.Status = to
	case events.EventTypeReassigned:
		st.Owner = ev.PayloadString(events.FieldOwner)
	case events.EventTypeClosed:
		st.Status = types.StatusDone
		st.Closed = true
	}

	st.record(ev, seq)
	return nil
}

func (st *TaskState) record(ev *events.TaskEvent, seq int) {
	st.UpdatedAt = ev.Timestamp.UTC()
	st.History = append(st.History, HistoryEntry{
		Seq:       seq,
		EventID:   ev.ID,
		Type:      ev.Type,
		Timestamp: ev.Timestamp.UTC(),
		Actor:     ev.Actor,
		Summary:   ev.Summary(),
	})
}

// ByStatus returns the tasks in a status group sorted by task_id.
func (p *Projection) ByStatus(status types.Status) []*TaskState {
	var out []*TaskState
	for _, st := range p.Tasks {
		if st.Status == status {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Task returns the state for a task_id, or nil.
func (p *Projection) Task(taskID string) *TaskState {
	return p.Tasks[taskID]
}

// Faulted reports whether replay of taskID stopped on a fault.
func (p *Projection) Faulted(taskID string) bool {
	for _, f := range p.Faults {
		if f.TaskID == taskID {
			return true
		}
	}
	return false
}

// Err joins every replay fault, or returns nil.
func (p *Projection) Err() error {
	if len(p.Faults) == 0 {
		return nil
	}
	errs := make([]error, len(p.Faults))
	for i, f := range p.Faults {
		errs[i] = f
	}
	return errors.Join(errs...)
}
