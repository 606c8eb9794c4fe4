package events_test

import (
	"fmt"
	"strings"

	"github.com/steveyegge/tally/internal/events"
)

// ExampleParseLog demonstrates loading a ledger and inspecting its records.
func ExampleParseLog() {
	ledger := strings.Join([]string{
		`{"event_id":"e1","task_id":"T1","type":"created","timestamp":"2026-01-05T09:00:00Z","actor":"alice","payload":{"title":"Ship ledger"}}`,
		`{"event_id":"e2","task_id":"T1","type":"reassigned","timestamp":"2026-01-05T09:30:00Z","actor":"alice","payload":{"owner":"bob"}}`,
	}, "\n") + "\n"

	evs, err := events.ParseLog(strings.NewReader(ledger), "events.jsonl")
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, ev := range evs {
		fmt.Printf("%s %s: %s\n", ev.TaskID, ev.Type, ev.Summary())
	}
	// Output:
	// T1 created: created "Ship ledger"
	// T1 reassigned: reassigned to bob
}

// ExampleParseLog_malformed shows that a bad line stops the load and is named.
func ExampleParseLog_malformed() {
	ledger := `{"event_id":"e1","task_id":"T1","type":"created","timestamp":"2026-01-05T09:00:00Z","actor":"alice","payload":{"title":"Ship ledger"}}` + "\n{oops\n"

	_, err := events.ParseLog(strings.NewReader(ledger), "events.jsonl")
	fmt.Println(err != nil, strings.HasPrefix(err.Error(), "events.jsonl:2: malformed event"))
	// Output:
	// true true
}
