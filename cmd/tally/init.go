package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tally/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty ledger in the current directory",
	Long: `Create .tally/events.jsonl in the current directory.

Commands run from this directory will discover the ledger automatically.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatalf("failed to get current directory: %v", err)
		}
		path, err := storage.InitProject(cwd)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("\n%s Initialized tally ledger\n\n", green("✓"))
		fmt.Printf("  Ledger: %s\n\n", cyan(path))
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray(`tally append --task T1 --type created --set title="First task"`))
		fmt.Printf("  %s\n", gray("tally render"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
