package projection

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/types"
)

const (
	// BoardHeading is the first line of every rendered board.
	BoardHeading = "# Task Board"
	// StampPrefix starts the only line excluded from equivalence checks.
	StampPrefix = "<!-- generated-at:"
	// FaultsHeading introduces the replay faults section.
	FaultsHeading = "## Replay faults"
	// EmptyGroup is written under a status group with no tasks.
	EmptyGroup = "_No tasks._"
)

// StampLine formats the generated-at line.
func StampLine(generatedAt time.Time) string {
	return fmt.Sprintf("%s %s -->", StampPrefix, generatedAt.UTC().Format(time.RFC3339))
}

// IsStampLine reports whether line is a generated-at stamp.
func IsStampLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), StampPrefix)
}

// Render folds evs and renders the canonical board.
func Render(evs []*events.TaskEvent, generatedAt time.Time) string {
	return RenderProjection(Project(evs), generatedAt)
}

// RenderProjection renders an existing projection. Layout:
//
//	# Task Board
//	<!-- generated-at: ... -->
//	source line, totals line
//	## <status> (<n>)     for open, in_progress, blocked, done, always present
//	### <task_id>: <title> per task, sorted by task_id
//	## Replay faults (<n>) only when replay faulted
func RenderProjection(p *Projection, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString(BoardHeading + "\n\n")
	b.WriteString(StampLine(generatedAt) + "\n\n")
	fmt.Fprintf(&b, "Projected from %d events (%s).\n", p.EventCount, p.Digest)

	groups := make(map[types.Status][]*TaskState)
	counts := make([]string, 0, len(types.Statuses()))
	for _, status := range types.Statuses() {
		groups[status] = p.ByStatus(status)
		counts = append(counts, fmt.Sprintf("%s %d", status, len(groups[status])))
	}
	fmt.Fprintf(&b, "Tasks: %d total (%s).\n", len(p.Tasks), strings.Join(counts, ", "))

	for _, status := range types.Statuses() {
		tasks := groups[status]
		fmt.Fprintf(&b, "\n## %s (%d)\n", status, len(tasks))
		if len(tasks) == 0 {
			b.WriteString("\n" + EmptyGroup + "\n")
			continue
		}
		for _, st := range tasks {
			writeTask(&b, st, p.Faulted(st.TaskID))
		}
	}

	if len(p.Faults) > 0 {
		fmt.Fprintf(&b, "\n%s (%d)\n\n", FaultsHeading, len(p.Faults))
		for _, f := range p.Faults {
			fmt.Fprintf(&b, "- %s\n", inline(f.Error()))
		}
	}

	return b.String()
}

func writeTask(b *strings.Builder, st *TaskState, faulted bool) {
	fmt.Fprintf(b, "\n### %s: %s\n\n", inline(st.TaskID), inline(st.Title))
	b.WriteString("| Task | Field | Value |\n")
	b.WriteString("| --- | --- | --- |\n")

	row := func(field, value string) {
		fmt.Fprintf(b, "| %s | %s | %s |\n", cell(st.TaskID), field, cell(value))
	}
	row("status", string(st.Status))
	row("owner", orDash(st.Owner))
	row("priority", types.FormatPriority(st.Priority))
	row("updated_at", st.UpdatedAt.UTC().Format(time.RFC3339))
	row("closed", yesNo(st.Closed))
	if faulted {
		row("replay", "halted")
	}

	fmt.Fprintf(b, "\nHistory (%d):\n\n", len(st.History))
	for i, h := range st.History {
		fmt.Fprintf(b, "%d. `%s` %s by %s: %s\n",
			i+1,
			h.Timestamp.UTC().Format(time.RFC3339),
			h.Type,
			inline(h.Actor),
			inline(h.Summary),
		)
	}
}

// TaskIDFromHeading extracts the task_id from a "### <id>: <title>" heading
// text (without the hashes).
func TaskIDFromHeading(text string) string {
	id, _, _ := strings.Cut(strings.TrimSpace(text), ": ")
	return strings.TrimSuffix(id, ":")
}

func inline(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func cell(s string) string {
	return strings.ReplaceAll(inline(s), "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
