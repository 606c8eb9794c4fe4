package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/types"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// fatalf prints an error in the standard format and exits 1.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s Error: %s\n", red("✗"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// getEventIcon returns the marker shown in front of each history line.
func getEventIcon(t events.EventType) string {
	switch t {
	case events.EventTypeCreated:
		return "✚"
	case events.EventTypeStatusChanged:
		return "→"
	case events.EventTypeReassigned:
		return "👤"
	case events.EventTypeCommented:
		return "💬"
	case events.EventTypeClosed:
		return "✓"
	default:
		return "•"
	}
}

// getStatusColor maps a task status to its display color.
func getStatusColor(s types.Status) func(a ...interface{}) string {
	switch s {
	case types.StatusOpen:
		return cyan
	case types.StatusInProgress:
		return yellow
	case types.StatusBlocked:
		return red
	case types.StatusDone:
		return green
	default:
		return gray
	}
}

// truncateString shortens s to maxLen runes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// printRule writes a section header.
func printRule(w io.Writer, title string) {
	fmt.Fprintf(w, "%s\n", bold(title))
	fmt.Fprintf(w, "%s\n", gray(strings.Repeat("─", len([]rune(title)))))
}
