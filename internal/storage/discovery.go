package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LedgerDir is the per-project directory holding the ledger and board.
const LedgerDir = ".tally"

// DiscoverLedger finds the ledger for the current directory. TALLY_LEDGER
// wins when set. Otherwise .tally/events.jsonl, then the first .tally/*.db
// or .tally/*.sqlite, in the current directory only. Parent directories are
// never searched, so a nested checkout cannot pick up an enclosing project's
// ledger.
func DiscoverLedger() (string, error) {
	if path := os.Getenv("TALLY_LEDGER"); path != "" {
		return path, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverLedgerInDir(dir)
}

func discoverLedgerInDir(dir string) (string, error) {
	tallyDir := filepath.Join(dir, LedgerDir)

	if info, err := os.Stat(tallyDir); err == nil && info.IsDir() {
		jsonlPath := filepath.Join(tallyDir, "events.jsonl")
		if info, err := os.Stat(jsonlPath); err == nil && !info.IsDir() {
			return filepath.Abs(jsonlPath)
		}

		entries, err := os.ReadDir(tallyDir)
		if err == nil {
			var dbs []string
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				if BackendFor(entry.Name()) == BackendSQLite {
					dbs = append(dbs, entry.Name())
				}
			}
			sort.Strings(dbs)
			if len(dbs) > 0 {
				return filepath.Abs(filepath.Join(tallyDir, dbs[0]))
			}
		}
	}

	return "", fmt.Errorf(
		"no ledger found in %s\n"+
			"  Run 'tally init' to create %s/events.jsonl\n"+
			"  Or use --ledger to specify the ledger path explicitly",
		dir, LedgerDir)
}

// InitProject creates the .tally directory and an empty JSONL ledger in
// projectDir. It refuses to overwrite an existing ledger.
func InitProject(projectDir string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	tallyDir := filepath.Join(projectDir, LedgerDir)
	if err := os.MkdirAll(tallyDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", LedgerDir, err)
	}

	ledgerPath := filepath.Join(tallyDir, "events.jsonl")
	f, err := os.OpenFile(ledgerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("ledger already exists: %s", ledgerPath)
		}
		return "", fmt.Errorf("failed to create ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to create ledger: %w", err)
	}
	return ledgerPath, nil
}
