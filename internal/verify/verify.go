// Package verify detects drift between a persisted task board and the board
// the ledger projects today.
package verify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/projection"
)

// DefaultMaxDiffLines bounds the diff carried in a Result.
const DefaultMaxDiffLines = 120

// Config holds verifier settings.
type Config struct {
	// MaxDiffLines bounds Result.Diff; lines beyond it are counted in
	// Result.Truncated. Zero means DefaultMaxDiffLines.
	MaxDiffLines int
	// ContextLines is the unified diff context. Zero means 2.
	ContextLines int
	// SnapshotName labels the persisted side of the diff.
	SnapshotName string
}

// Verifier compares a ledger's projection against a persisted snapshot.
type Verifier struct {
	maxDiffLines int
	contextLines int
	snapshotName string
}

// New creates a Verifier from cfg.
func New(cfg Config) *Verifier {
	v := &Verifier{
		maxDiffLines: cfg.MaxDiffLines,
		contextLines: cfg.ContextLines,
		snapshotName: cfg.SnapshotName,
	}
	if v.maxDiffLines <= 0 {
		v.maxDiffLines = DefaultMaxDiffLines
	}
	if v.contextLines <= 0 {
		v.contextLines = 2
	}
	if v.snapshotName == "" {
		v.snapshotName = "snapshot"
	}
	return v
}

// Result is the outcome of one verification.
type Result struct {
	OK bool `json:"ok"`
	// Diff is a unified diff from the projection to the snapshot, bounded
	// to the configured maximum.
	Diff []string `json:"diff"`
	// Truncated counts diff lines dropped from Diff.
	Truncated int `json:"truncated"`
	// Drift summarizes affected tasks.
	Drift []TaskDrift `json:"drift"`
	// Faults counts replay faults in the recomputed projection.
	Faults int `json:"faults"`
	// Digest identifies the ledger the projection came from.
	Digest string `json:"digest"`
}

// Err returns a *ConsistencyMismatch when the snapshot drifted.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &ConsistencyMismatch{Digest: r.Digest, Drift: r.Drift, DiffLines: len(r.Diff) + r.Truncated}
}

// ConsistencyMismatch reports a persisted board that does not match the
// ledger. Whether it is fatal is the caller's decision.
type ConsistencyMismatch struct {
	Digest    string
	Drift     []TaskDrift
	DiffLines int
}

func (e *ConsistencyMismatch) Error() string {
	if len(e.Drift) == 0 {
		return fmt.Sprintf("snapshot drifted from ledger %s (%d diff lines)", e.Digest, e.DiffLines)
	}
	parts := make([]string, len(e.Drift))
	for i, d := range e.Drift {
		parts[i] = d.String()
	}
	return fmt.Sprintf("snapshot drifted from ledger %s: %s", e.Digest, strings.Join(parts, "; "))
}

// Verify renders evs in-process and compares the result with persisted,
// ignoring the generated-at line on both sides.
func (v *Verifier) Verify(evs []*events.TaskEvent, persisted string) Result {
	p := projection.Project(evs)
	expected := projection.RenderProjection(p, time.Time{})
	return v.Compare(expected, persisted, p)
}

// Compare checks an already rendered board against persisted. p may be nil.
func (v *Verifier) Compare(expected, persisted string, p *projection.Projection) Result {
	want := Normalize(expected)
	got := Normalize(persisted)

	res := Result{OK: want == got}
	if p != nil {
		res.Faults = len(p.Faults)
		res.Digest = p.Digest
	}
	if res.OK {
		return res
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "projection (ledger)",
		ToFile:   v.snapshotName,
		Context:  v.contextLines,
	})
	if err != nil {
		slog.Debug("unified diff failed", "error", err)
		diff = ""
	}

	lines := splitDiff(diff)
	if len(lines) > v.maxDiffLines {
		res.Truncated = len(lines) - v.maxDiffLines
		lines = lines[:v.maxDiffLines]
	}
	res.Diff = lines
	res.Drift = CompareSections(want, got)

	slog.Debug("snapshot drift detected",
		"diff_lines", len(res.Diff)+res.Truncated,
		"drifted_tasks", len(res.Drift))
	return res
}

// Normalize drops the first generated-at line. Nothing else is touched, so
// any other byte difference, including a second stamp line, counts as drift.
func Normalize(doc string) string {
	if !strings.Contains(doc, projection.StampPrefix) {
		return doc
	}
	lines := strings.SplitAfter(doc, "\n")
	for i, line := range lines {
		if projection.IsStampLine(line) {
			return strings.Join(lines[:i], "") + strings.Join(lines[i+1:], "")
		}
	}
	return doc
}

func splitDiff(diff string) []string {
	diff = strings.TrimRight(diff, "\n")
	if diff == "" {
		return nil
	}
	return strings.Split(diff, "\n")
}
