package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/tally/internal/types"
)

// CreateOptions carries the optional fields of a created event.
type CreateOptions struct {
	Status   types.Status
	Owner    string
	Priority *int
}

// NewEvent creates a TaskEvent with a fresh ID and the current UTC time.
// The payload is copied; nil becomes an empty payload.
func NewEvent(eventType EventType, taskID, actor string, payload map[string]interface{}) *TaskEvent {
	p := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return &TaskEvent{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Payload:   p,
	}
}

// NewCreatedEvent creates the event that introduces a task.
func NewCreatedEvent(taskID, actor, title string, opts CreateOptions) *TaskEvent {
	payload := map[string]interface{}{FieldTitle: title}
	if opts.Status != "" {
		payload[FieldStatus] = string(opts.Status)
	}
	if opts.Owner != "" {
		payload[FieldOwner] = opts.Owner
	}
	if opts.Priority != nil {
		payload[FieldPriority] = float64(*opts.Priority)
	}
	return NewEvent(EventTypeCreated, taskID, actor, payload)
}

// NewStatusChangedEvent creates a status transition event.
func NewStatusChangedEvent(taskID, actor string, status types.Status, reason string) *TaskEvent {
	payload := map[string]interface{}{FieldStatus: string(status)}
	if reason != "" {
		payload[FieldReason] = reason
	}
	return NewEvent(EventTypeStatusChanged, taskID, actor, payload)
}

// NewReassignedEvent creates an owner change event.
func NewReassignedEvent(taskID, actor, owner string) *TaskEvent {
	return NewEvent(EventTypeReassigned, taskID, actor, map[string]interface{}{FieldOwner: owner})
}

// NewCommentedEvent creates a comment event.
func NewCommentedEvent(taskID, actor, comment string) *TaskEvent {
	return NewEvent(EventTypeCommented, taskID, actor, map[string]interface{}{FieldComment: comment})
}

// NewClosedEvent creates the terminal event for a task.
func NewClosedEvent(taskID, actor, reason string) *TaskEvent {
	payload := map[string]interface{}{}
	if reason != "" {
		payload[FieldReason] = reason
	}
	return NewEvent(EventTypeClosed, taskID, actor, payload)
}
