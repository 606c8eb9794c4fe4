package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/storage"
)

var exportTo string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the ledger into a JSONL file",
	Long: `Copy every event of the current ledger, in order, into a JSON Lines
ledger. Use it to move a SQLite ledger into a form that can be reviewed and
committed. The target must not already contain any of the events.

Example:
  tally export --ledger .tally/events.db --to .tally/events.jsonl`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		src := openLedger(ctx)
		defer src.Close()

		n, err := exportLedger(ctx, src, exportTo)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Exported %d events to %s\n", green("✓"), n, cyan(exportTo))
	},
}

func exportLedger(ctx context.Context, src storage.Ledger, to string) (int, error) {
	if storage.BackendFor(to) != storage.BackendJSONL {
		return 0, fmt.Errorf("export target %s must be a JSONL path", to)
	}
	if to == src.Path() {
		return 0, fmt.Errorf("export target is the source ledger")
	}
	dst, err := storage.Open(ctx, &storage.Config{Path: to})
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return storage.Copy(ctx, dst, src)
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Target JSONL path")
	_ = exportCmd.MarkFlagRequired("to")
}
