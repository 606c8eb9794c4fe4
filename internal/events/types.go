package events

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/tally/internal/types"
)

// EventType represents the kind of change a ledger event records.
type EventType string

const (
	// EventTypeCreated introduces a task; it must be the first event for a task_id
	EventTypeCreated EventType = "created"
	// EventTypeStatusChanged moves a task to a new status
	EventTypeStatusChanged EventType = "status_changed"
	// EventTypeReassigned changes the task owner
	EventTypeReassigned EventType = "reassigned"
	// EventTypeCommented attaches a note without changing state
	EventTypeCommented EventType = "commented"
	// EventTypeClosed finalizes a task; only comments may follow
	EventTypeClosed EventType = "closed"
)

// Payload keys understood by the projection.
const (
	FieldTitle    = "title"
	FieldStatus   = "status"
	FieldOwner    = "owner"
	FieldPriority = "priority"
	FieldReason   = "reason"
	FieldComment  = "comment"
)

// EventTypes returns every known event type.
func EventTypes() []EventType {
	return []EventType{
		EventTypeCreated,
		EventTypeStatusChanged,
		EventTypeReassigned,
		EventTypeCommented,
		EventTypeClosed,
	}
}

// IsValid checks if the event type is one the ledger accepts.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeCreated, EventTypeStatusChanged, EventTypeReassigned, EventTypeCommented, EventTypeClosed:
		return true
	}
	return false
}

// IsAdministrative reports whether the event annotates a task without
// changing it. Administrative events remain legal after a task is closed.
func (t EventType) IsAdministrative() bool {
	return t == EventTypeCommented
}

// TaskEvent is one immutable ledger record. File order is logical time;
// Timestamp is informational.
type TaskEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"event_id"`
	// TaskID is the task this event applies to
	TaskID string `json:"task_id"`
	// Type is the kind of change
	Type EventType `json:"type"`
	// Timestamp is when the writer recorded the event (always UTC once parsed)
	Timestamp time.Time `json:"timestamp"`
	// Actor is who or what produced the event
	Actor string `json:"actor"`
	// Payload holds the type-specific fields
	Payload map[string]interface{} `json:"payload"`
}

// Precondition inspects the events already in a ledger just before an
// append, while the writer holds the ledger. A non-nil error refuses the
// append.
type Precondition func(existing []*TaskEvent) error

// Validate checks the envelope and the type-specific payload fields.
func (e *TaskEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event_id is required")
	}
	if strings.TrimSpace(e.TaskID) == "" {
		return fmt.Errorf("task_id is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown event type: %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return fmt.Errorf("actor is required")
	}

	for key, value := range e.Payload {
		switch value.(type) {
		case nil, string, bool, float64, int:
		default:
			return fmt.Errorf("payload field %q must be a scalar", key)
		}
	}

	switch e.Type {
	case EventTypeCreated:
		if e.PayloadString(FieldTitle) == "" {
			return fmt.Errorf("created event requires payload.title")
		}
		if _, ok := e.Payload[FieldStatus]; ok {
			if _, err := types.ParseStatus(e.PayloadString(FieldStatus)); err != nil {
				return fmt.Errorf("payload.status: %w", err)
			}
		}
		if _, _, err := e.PayloadPriority(); err != nil {
			return fmt.Errorf("payload.priority: %w", err)
		}
	case EventTypeStatusChanged:
		if _, err := types.ParseStatus(e.PayloadString(FieldStatus)); err != nil {
			return fmt.Errorf("status_changed event requires a valid payload.status: %w", err)
		}
	case EventTypeReassigned:
		if e.PayloadString(FieldOwner) == "" {
			return fmt.Errorf("reassigned event requires payload.owner")
		}
	case EventTypeCommented:
		if e.PayloadString(FieldComment) == "" {
			return fmt.Errorf("commented event requires payload.comment")
		}
	}

	return nil
}

// PayloadString returns a payload field as trimmed text. Numbers and
// booleans are formatted; missing and null fields yield "".
func (e *TaskEvent) PayloadString(key string) string {
	switch v := e.Payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// PayloadPriority returns payload.priority. ok is false when the field is
// absent or null.
func (e *TaskEvent) PayloadPriority() (priority int, ok bool, err error) {
	raw, present := e.Payload[FieldPriority]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false, fmt.Errorf("priority must be an integer (got %v)", v)
		}
		priority = int(v)
		if err := types.ValidatePriority(priority); err != nil {
			return 0, false, err
		}
		return priority, true, nil
	case int:
		if err := types.ValidatePriority(v); err != nil {
			return 0, false, err
		}
		return v, true, nil
	case string:
		priority, err = types.ParsePriority(v)
		if err != nil {
			return 0, false, err
		}
		return priority, true, nil
	}
	return 0, false, fmt.Errorf("unsupported priority value %v", raw)
}

// Summary renders a one-line, deterministic description of the event for
// task history.
func (e *TaskEvent) Summary() string {
	switch e.Type {
	case EventTypeCreated:
		parts := []string{fmt.Sprintf("created %q", e.PayloadString(FieldTitle))}
		if s := e.PayloadString(FieldStatus); s != "" {
			parts = append(parts, "status "+s)
		}
		if o := e.PayloadString(FieldOwner); o != "" {
			parts = append(parts, "owner "+o)
		}
		if p, ok, _ := e.PayloadPriority(); ok {
			parts = append(parts, types.FormatPriority(p))
		}
		return strings.Join(parts, ", ")
	case EventTypeStatusChanged:
		s := "status -> " + e.PayloadString(FieldStatus)
		if r := e.PayloadString(FieldReason); r != "" {
			s += " (" + r + ")"
		}
		return s
	case EventTypeReassigned:
		return "reassigned to " + e.PayloadString(FieldOwner)
	case EventTypeCommented:
		return "comment: " + e.PayloadString(FieldComment)
	case EventTypeClosed:
		if r := e.PayloadString(FieldReason); r != "" {
			return "closed: " + r
		}
		return "closed"
	}
	return string(e.Type)
}

// PayloadKeys returns the payload keys in sorted order.
func (e *TaskEvent) PayloadKeys() []string {
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so callers can hold events without aliasing
// the ledger's slice.
func (e *TaskEvent) Clone() *TaskEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = make(map[string]interface{}, len(e.Payload))
	for k, v := range e.Payload {
		c.Payload[k] = v
	}
	return &c
}
