package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/projection"
	"github.com/steveyegge/tally/internal/storage"
)

var (
	renderOut         string
	renderAllowFaults bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the task board from the ledger",
	Long: `Replay the ledger and write the canonical task board.

The board groups tasks by status (open, in_progress, blocked, done), sorts
them by task ID and lists each task's history. Rendering the same ledger
always produces the same bytes apart from the generated-at line.

A malformed ledger aborts the render. Replay faults (illegal transitions,
events for unknown tasks, events after close) are listed in a "Replay
faults" section and fail the command unless --allow-faults is given.

Example:
  tally render                      # writes .tally/BOARD.md
  tally render --out -              # print to stdout
  tally render --ledger events.db   # render a SQLite ledger`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ledger := openLedger(ctx)
		defer ledger.Close()

		board, p, err := renderBoard(ctx, ledger, time.Now(), renderAllowFaults)
		if err != nil {
			fatalf("%v", err)
		}

		out := renderOut
		if out == "" {
			out = cfg.Board
		}
		if out == "-" {
			fmt.Print(board)
			return
		}
		if err := writeFileAtomic(out, []byte(board)); err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Rendered %d tasks from %d events to %s\n",
			green("✓"), len(p.Tasks), p.EventCount, cyan(out))
		if len(p.Faults) > 0 {
			fmt.Printf("%s %d replay fault(s) recorded in the board\n", yellow("⚠"), len(p.Faults))
		}
	},
}

// renderBoard loads the ledger and renders it. Replay faults are an error
// unless allowFaults is set; the board is returned either way.
func renderBoard(ctx context.Context, ledger storage.Ledger, now time.Time, allowFaults bool) (string, *projection.Projection, error) {
	evs, err := ledger.Events(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("loading ledger: %w", err)
	}

	p := projection.Project(evs)
	board := projection.RenderProjection(p, now)

	if err := p.Err(); err != nil && !allowFaults {
		return board, p, fmt.Errorf("ledger replay faulted (use --allow-faults to render anyway):\n%w", err)
	}
	return board, p, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output path (default: configured board, - for stdout)")
	renderCmd.Flags().BoolVar(&renderAllowFaults, "allow-faults", false, "Write the board even when replay faults occur")
}
