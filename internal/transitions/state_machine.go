// Package transitions defines the legal task status transitions.
//
// State flow:
// - open → in_progress, blocked, done
// - in_progress → blocked, done
// - blocked → open, in_progress, done
// - done is terminal
//
// Anything not listed, including a transition to the current status, is
// rejected. The closed event bypasses this table: it is the administrative
// finalizer and may be applied from any status.
package transitions

import (
	"fmt"

	"github.com/steveyegge/tally/internal/types"
)

var table = map[types.Status][]types.Status{
	types.StatusOpen:       {types.StatusInProgress, types.StatusBlocked, types.StatusDone},
	types.StatusInProgress: {types.StatusBlocked, types.StatusDone},
	types.StatusBlocked:    {types.StatusOpen, types.StatusInProgress, types.StatusDone},
	types.StatusDone:       {},
}

// InvalidTransitionError reports a status change the table does not allow.
type InvalidTransitionError struct {
	From types.Status
	To   types.Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("invalid transition %s → %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition %s → %s (allowed from %s: %s)", e.From, e.To, e.From, formatTargets(Allowed(e.From)))
}

// Check returns an *InvalidTransitionError unless from → to is listed.
func Check(from, to types.Status) error {
	if !from.IsValid() || !to.IsValid() {
		return &InvalidTransitionError{From: from, To: to}
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// Allowed returns the statuses reachable from from in one step.
func Allowed(from types.Status) []types.Status {
	targets := table[from]
	out := make([]types.Status, len(targets))
	copy(out, targets)
	return out
}

// Rule is one row of the transition table.
type Rule struct {
	From types.Status
	To   []types.Status
}

// Rules returns the full table in board order.
func Rules() []Rule {
	rules := make([]Rule, 0, len(table))
	for _, s := range types.Statuses() {
		rules = append(rules, Rule{From: s, To: Allowed(s)})
	}
	return rules
}

func formatTargets(targets []types.Status) string {
	if len(targets) == 0 {
		return "none"
	}
	s := ""
	for i, t := range targets {
		if i > 0 {
			s += ", "
		}
		s += string(t)
	}
	return s
}
