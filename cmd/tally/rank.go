package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/ranking"
)

var (
	rankSelect string
	rankRanked string
	rankJSON   bool
)

var rankCmd = &cobra.Command{
	Use:   "rank [FILE]",
	Short: "Rank candidates and explain the selection",
	Long: `Rank the candidates in FILE and print the ranking with a selection
rationale.

FILE holds a JSON (comments and trailing commas allowed) array of candidate
records, or an object with a "candidates" array. Records that cannot be
ranked are listed as rejected; they never stop the others from being ranked.

With --ranked, FILE is skipped and an already ranked list is explained
instead. Ranks must run 1..N.

A rationale whose top gap is under low_confidence_gap (default 5.0) is
flagged low confidence and should be reviewed before acting on it.

Example:
  tally rank candidates.json
  tally rank candidates.json --select B
  tally rank --ranked ranked.json --json`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		builder := ranking.NewBuilder(cfg.LowConfidenceGap, cfg.ScoreboardSize)

		var (
			eval *ranking.Evaluation
			err  error
		)
		switch {
		case rankRanked != "" && len(args) > 0:
			fatalf("pass either FILE or --ranked, not both")
		case rankRanked != "":
			eval, err = explainRanked(builder, rankRanked, rankSelect)
		case len(args) == 1:
			eval, err = evaluateFile(builder, args[0], rankSelect)
		default:
			fatalf("a candidates FILE or --ranked FILE is required")
		}
		if err != nil {
			fatalf("%v", err)
		}

		if rankJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(eval); err != nil {
				fatalf("failed to encode evaluation: %v", err)
			}
			return
		}
		printEvaluation(os.Stdout, eval)
	},
}

func evaluateFile(b *ranking.Builder, path, selectedID string) (*ranking.Evaluation, error) {
	records, err := ranking.LoadCandidates(path)
	if err != nil {
		return nil, err
	}
	return b.Evaluate(records, selectedID)
}

func explainRanked(b *ranking.Builder, path, selectedID string) (*ranking.Evaluation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	ranked, err := ranking.ParseRanked(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := ranking.ValidateRanks(ranked); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rationale, err := b.Build(ranked, selectedID)
	if err != nil {
		return nil, err
	}
	return &ranking.Evaluation{
		Ranked:    ranked,
		Rejected:  []ranking.Rejection{},
		TopGap:    ranking.TopGap(ranked),
		Rationale: rationale,
	}, nil
}

func printEvaluation(w io.Writer, eval *ranking.Evaluation) {
	printRule(w, "Ranking")
	if len(eval.Ranked) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No candidates"))
	} else {
		fmt.Fprintf(w, "  %-4s %-20s %-20s %8s  %s\n", "RANK", "CANDIDATE", "ANGLE", "SCORE", "RISK")
		for _, r := range eval.Ranked {
			line := fmt.Sprintf("  %-4d %-20s %-20s %8.2f  %s",
				r.Rank, truncateString(r.Key(), 20), truncateString(r.Angle, 20), r.Score, r.Risk)
			if eval.Rationale != nil && r.Key() == eval.Rationale.SelectedID {
				line = green(line)
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(eval.Rejected) > 0 {
		fmt.Fprintln(w)
		printRule(w, "Rejected")
		for _, r := range eval.Rejected {
			fmt.Fprintf(w, "  %s #%d %s\n", red("✗"), r.Index, r.Reason)
			fmt.Fprintf(w, "    %s\n", gray(truncateString(r.Raw, 72)))
		}
	}

	rat := eval.Rationale
	if rat == nil {
		return
	}
	fmt.Fprintln(w)
	printRule(w, "Selection")
	if rat.SelectedID != "" {
		fmt.Fprintf(w, "  Selected: %s (rank %d)\n", cyan(rat.SelectedID), rat.SelectedRank)
	}
	fmt.Fprintf(w, "  Top gap:  %.2f\n", rat.TopGap)
	if rat.LowConfidence && rat.SelectedID != "" {
		fmt.Fprintf(w, "  %s %s\n", yellow("⚠"), yellow("low confidence"))
	}
	fmt.Fprintf(w, "  %s\n", rat.Reason)
}

func init() {
	rootCmd.AddCommand(rankCmd)
	rankCmd.Flags().StringVar(&rankSelect, "select", "", "Explain this candidate instead of the top-ranked one")
	rankCmd.Flags().StringVar(&rankRanked, "ranked", "", "Explain an already ranked list instead of ranking FILE")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "Print the evaluation as JSON")
}
