package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/config"
	"github.com/steveyegge/tally/internal/storage"
)

var (
	cfg        = config.Default()
	configPath string
	ledgerFlag string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Event-sourced task board with drift checks and candidate ranking",
	Long: `tally keeps task state in an append-only event ledger and renders it
into a canonical markdown board. verify recomputes the board from the ledger
and reports any drift in the checked-in copy. rank orders competing
candidates deterministically and explains the selection.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded

		level := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		cfg.Ledger = resolveLedger(cmd, cfg.Ledger)
		slog.Debug("configuration loaded", "config", cfg.String())
	},
}

// resolveLedger applies --ledger, then falls back to discovery when the
// configured path is still the built-in default.
func resolveLedger(cmd *cobra.Command, configured string) string {
	if cmd.Flags().Changed("ledger") {
		return ledgerFlag
	}
	if configured != config.Default().Ledger {
		return configured
	}
	if found, err := storage.DiscoverLedger(); err == nil {
		return found
	}
	return configured
}

func openLedger(ctx context.Context) storage.Ledger {
	ledger, err := storage.Open(ctx, &storage.Config{Path: cfg.Ledger})
	if err != nil {
		fatalf("failed to open ledger: %v", err)
	}
	return ledger
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&ledgerFlag, "ledger", "", "Ledger path (.jsonl, or .db/.sqlite for SQLite)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
