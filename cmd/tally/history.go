package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/projection"
	"github.com/steveyegge/tally/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history TASK",
	Short: "Show a task's current state and event history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ledger := openLedger(ctx)
		defer ledger.Close()

		evs, err := ledger.Events(ctx)
		if err != nil {
			fatalf("loading ledger: %v", err)
		}
		p := projection.Project(evs)
		if err := printHistory(os.Stdout, p, args[0]); err != nil {
			fatalf("%v", err)
		}
	},
}

func printHistory(w io.Writer, p *projection.Projection, taskID string) error {
	st := p.Task(taskID)
	if st == nil {
		for _, f := range p.Faults {
			if f.TaskID == taskID {
				return fmt.Errorf("task %s never replayed: %v", taskID, f)
			}
		}
		return fmt.Errorf("task %s not found in ledger", taskID)
	}

	statusColor := getStatusColor(st.Status)
	owner := st.Owner
	if owner == "" {
		owner = "unassigned"
	}
	fmt.Fprintf(w, "%s %s\n", bold(st.TaskID+":"), st.Title)
	fmt.Fprintf(w, "  %s  %s  %s", statusColor(string(st.Status)), types.FormatPriority(st.Priority), owner)
	if st.Closed {
		fmt.Fprintf(w, "  %s", gray("closed"))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	for _, h := range st.History {
		fmt.Fprintf(w, "%s [%s] %s %s: %s\n",
			getEventIcon(h.Type),
			h.Timestamp.Format("2006-01-02 15:04:05"),
			cyan(h.Actor),
			gray(string(h.Type)),
			truncateString(h.Summary, 80),
		)
	}

	for _, f := range p.Faults {
		if f.TaskID == taskID {
			fmt.Fprintf(w, "\n%s replay halted: %v\n", red("✗"), f)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
