package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Status represents the projected state of a task
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// Statuses returns every status in board order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusBlocked, StatusDone}
}

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// IsTerminal reports whether no status transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// ParseStatus converts a raw status string, rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status: %q", raw)
	}
	return s, nil
}

// Priority bounds. P0 is the most urgent.
const (
	MinPriority     = 0
	MaxPriority     = 4
	DefaultPriority = 2
)

// FormatPriority renders a priority as "P<n>".
func FormatPriority(p int) string {
	return fmt.Sprintf("P%d", p)
}

// ParsePriority accepts "2" or "P2" and enforces the priority range.
func ParsePriority(raw string) (int, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(raw)), "P")
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority: %q", raw)
	}
	if err := ValidatePriority(p); err != nil {
		return 0, err
	}
	return p, nil
}

// ValidatePriority checks that p lies within [MinPriority, MaxPriority].
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("priority must be between %d and %d (got %d)", MinPriority, MaxPriority, p)
	}
	return nil
}
