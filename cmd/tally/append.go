package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/projection"
	"github.com/steveyegge/tally/internal/storage"
	"github.com/steveyegge/tally/internal/types"
)

var (
	appendTask  string
	appendType  string
	appendSets  []string
	appendActor string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append one event to the ledger",
	Long: `Validate and append one task event.

The event is replayed against the current ledger first; an event that would
fault (an illegal transition, an unknown task, a change after close) is
refused and nothing is written.

Payload fields by type:
  created         title (required), status, owner, priority
  status_changed  status (required), reason
  reassigned      owner (required)
  commented       comment (required)
  closed          reason

Example:
  tally append --task T1 --type created --set title="Ship ledger" --set priority=P1
  tally append --task T1 --type status_changed --set status=in_progress
  tally append --task T1 --type closed --set reason=shipped`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		payload, err := parseSets(appendSets)
		if err != nil {
			fatalf("%v", err)
		}
		actor := appendActor
		if actor == "" {
			actor = defaultActor()
		}
		ev := events.NewEvent(events.EventType(appendType), appendTask, actor, payload)

		ledger := openLedger(ctx)
		defer ledger.Close()

		if err := appendEvent(ctx, ledger, ev); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Appended %s to %s %s\n", green("✓"), ev.ID, appendTask, gray(ev.Summary()))
	},
}

// appendEvent refuses ev if replaying the ledger with ev at the end would
// fault, then appends it. The replay runs while the backend holds the
// ledger for writing, so a concurrent append cannot slip in between the
// check and the write.
func appendEvent(ctx context.Context, ledger storage.Ledger, ev *events.TaskEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return ledger.AppendIf(ctx, ev, func(existing []*events.TaskEvent) error {
		return replayAccepts(existing, ev)
	})
}

// replayAccepts reports why ev would fault when replayed after existing.
func replayAccepts(existing []*events.TaskEvent, ev *events.TaskEvent) error {
	before := projection.Project(existing)
	if before.Faulted(ev.TaskID) {
		return fmt.Errorf("task %s is halted by an earlier replay fault; fix the ledger first", ev.TaskID)
	}

	after := projection.Project(append(existing[:len(existing):len(existing)], ev))
	for _, f := range after.Faults {
		if f.EventID == ev.ID {
			return fmt.Errorf("refusing event: %w", f)
		}
	}
	return nil
}

// parseSets turns key=value flags into a payload. priority accepts 0-4 or
// P0-P4 and is stored as a number.
func parseSets(sets []string) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(sets))
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (want key=value)", kv)
		}
		if _, dup := payload[key]; dup {
			return nil, fmt.Errorf("--set %s given more than once", key)
		}
		if key == events.FieldPriority {
			p, err := types.ParsePriority(value)
			if err != nil {
				return nil, err
			}
			payload[key] = float64(p)
			continue
		}
		payload[key] = value
	}
	return payload, nil
}

func defaultActor() string {
	if u := os.Getenv("TALLY_ACTOR"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func init() {
	rootCmd.AddCommand(appendCmd)
	appendCmd.Flags().StringVar(&appendTask, "task", "", "Task ID")
	appendCmd.Flags().StringVar(&appendType, "type", "", "Event type (created, status_changed, reassigned, commented, closed)")
	appendCmd.Flags().StringArrayVar(&appendSets, "set", nil, "Payload field as key=value (repeatable)")
	appendCmd.Flags().StringVar(&appendActor, "actor", "", "Actor recorded on the event (default: $TALLY_ACTOR or $USER)")
	_ = appendCmd.MarkFlagRequired("task")
	_ = appendCmd.MarkFlagRequired("type")
}
