package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/storage"
	"github.com/steveyegge/tally/internal/verify"
)

var (
	verifyBoardPath string
	verifyStrict    bool
	verifyJSON      bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the persisted board against the ledger",
	Long: `Recompute the board from the ledger and compare it with the persisted
copy, ignoring the generated-at line.

Drift is reported as a per-task summary plus a bounded unified diff. By
default drift is a warning and the command exits 0; with --strict (or
strict: true in the config) it exits 1. A missing board counts as drift.
A malformed ledger always exits 1.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ledger := openLedger(ctx)
		defer ledger.Close()

		boardPath := verifyBoardPath
		if boardPath == "" {
			boardPath = cfg.Board
		}
		strict := cfg.Strict
		if cmd.Flags().Changed("strict") {
			strict = verifyStrict
		}

		v := verify.New(verify.Config{MaxDiffLines: cfg.MaxDiffLines, SnapshotName: boardPath})
		res, err := verifyBoard(ctx, ledger, boardPath, v)
		if err != nil {
			fatalf("%v", err)
		}

		if verifyJSON {
			if err := writeVerifyJSON(os.Stdout, res); err != nil {
				fatalf("%v", err)
			}
		} else {
			printVerifyResult(os.Stdout, res, boardPath)
		}

		if code := verifyExitCode(res, strict); code != 0 {
			ledger.Close()
			os.Exit(code)
		}
	},
}

// verifyBoard compares the board at boardPath with a fresh projection of
// the ledger. A missing board is compared as empty.
func verifyBoard(ctx context.Context, ledger storage.Ledger, boardPath string, v *verify.Verifier) (verify.Result, error) {
	evs, err := ledger.Events(ctx)
	if err != nil {
		return verify.Result{}, fmt.Errorf("loading ledger: %w", err)
	}

	persisted, err := os.ReadFile(boardPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("persisted board not found, treating as empty", "path", boardPath)
	case err != nil:
		return verify.Result{}, fmt.Errorf("reading board: %w", err)
	}

	return v.Verify(evs, string(persisted)), nil
}

func verifyExitCode(res verify.Result, strict bool) int {
	if !res.OK && strict {
		return 1
	}
	return 0
}

func writeVerifyJSON(w io.Writer, res verify.Result) error {
	if res.Diff == nil {
		res.Diff = []string{}
	}
	if res.Drift == nil {
		res.Drift = []verify.TaskDrift{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func printVerifyResult(w io.Writer, res verify.Result, boardPath string) {
	if res.OK {
		fmt.Fprintf(w, "%s %s matches the ledger (%s)\n", green("✓"), boardPath, gray(res.Digest))
		if res.Faults > 0 {
			fmt.Fprintf(w, "%s the ledger has %d replay fault(s)\n", yellow("⚠"), res.Faults)
		}
		return
	}

	fmt.Fprintf(w, "%s %s has drifted from the ledger (%s)\n", red("✗"), boardPath, gray(res.Digest))
	if len(res.Drift) > 0 {
		fmt.Fprintln(w)
		printRule(w, "Affected tasks")
		for _, d := range res.Drift {
			fmt.Fprintf(w, "  %s\n", d.String())
		}
	}

	fmt.Fprintln(w)
	printRule(w, "Diff")
	for _, line := range res.Diff {
		switch {
		case len(line) > 0 && line[0] == '+' && !isDiffHeader(line):
			fmt.Fprintln(w, green(line))
		case len(line) > 0 && line[0] == '-' && !isDiffHeader(line):
			fmt.Fprintln(w, red(line))
		default:
			fmt.Fprintln(w, line)
		}
	}
	if res.Truncated > 0 {
		fmt.Fprintf(w, "%s\n", gray(fmt.Sprintf("... %d more diff lines not shown", res.Truncated)))
	}
	fmt.Fprintf(w, "\n%s run 'tally render' to regenerate the board\n", gray("→"))
}

func isDiffHeader(line string) bool {
	return len(line) >= 3 && (line[:3] == "+++" || line[:3] == "---")
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyBoardPath, "board", "", "Persisted board path (default: configured board)")
	verifyCmd.Flags().BoolVar(&verifyStrict, "strict", false, "Exit 1 when the board has drifted")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the result as JSON")
}
