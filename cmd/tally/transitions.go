package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/transitions"
)

var transitionsCmd = &cobra.Command{
	Use:   "transitions",
	Short: "Print the legal status transitions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, rule := range transitions.Rules() {
			targets := make([]string, len(rule.To))
			for i, t := range rule.To {
				targets[i] = string(t)
			}
			to := strings.Join(targets, ", ")
			if to == "" {
				to = gray("(terminal)")
			}
			fmt.Printf("  %s → %s\n", getStatusColor(rule.From)(fmt.Sprintf("%-12s", rule.From)), to)
		}
		fmt.Printf("\n%s closed may be applied from any status and ends the task\n", gray("→"))
	},
}

func init() {
	rootCmd.AddCommand(transitionsCmd)
}
