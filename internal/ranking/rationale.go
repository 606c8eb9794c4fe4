package ranking

import (
	"fmt"
	"strconv"
	"strings"
)

// Defaults for the rationale builder.
const (
	DefaultLowConfidenceGap = 5.0
	DefaultScoreboardSize   = 5
)

// NoCandidatesReason is the narrative when nothing could be ranked.
const NoCandidatesReason = "No candidates were available for selection."

// ScoreboardEntry is one row of the rationale scoreboard.
type ScoreboardEntry struct {
	Rank        int     `json:"rank"`
	CandidateID string  `json:"candidate_id"`
	Angle       string  `json:"angle"`
	Score       float64 `json:"score"`
}

// SelectionRationale explains a selection for audit trails and gates.
type SelectionRationale struct {
	SelectedID    string  `json:"selected_id"`
	SelectedAngle string  `json:"selected_angle"`
	SelectedRank  int     `json:"selected_rank"`
	TopGap        float64 `json:"top_gap"`
	Reason        string  `json:"reason"`
	// LowConfidence is set when TopGap is under the builder's threshold;
	// consumers should not execute such a selection automatically.
	LowConfidence bool              `json:"low_confidence"`
	Scoreboard    []ScoreboardEntry `json:"scoreboard"`
}

// Builder produces SelectionRationales.
type Builder struct {
	lowConfidenceGap float64
	scoreboardSize   int
}

// NewBuilder creates a Builder. Non-positive arguments fall back to the
// defaults.
func NewBuilder(lowConfidenceGap float64, scoreboardSize int) *Builder {
	if lowConfidenceGap <= 0 {
		lowConfidenceGap = DefaultLowConfidenceGap
	}
	if scoreboardSize <= 0 {
		scoreboardSize = DefaultScoreboardSize
	}
	return &Builder{lowConfidenceGap: lowConfidenceGap, scoreboardSize: scoreboardSize}
}

// Build explains the selection of selectedID from ranked, or of the
// top-ranked candidate when selectedID is empty. An unknown selectedID is
// an error.
func (b *Builder) Build(ranked []RankedCandidate, selectedID string) (*SelectionRationale, error) {
	if len(ranked) == 0 {
		return &SelectionRationale{
			TopGap:     0.0,
			Reason:     NoCandidatesReason,
			Scoreboard: []ScoreboardEntry{},
		}, nil
	}

	chosen := ranked[0]
	if selectedID != "" {
		found := false
		for _, r := range ranked {
			if r.Key() == selectedID {
				chosen, found = r, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("selected candidate %q is not in the ranked list", selectedID)
		}
	}

	gap := TopGap(ranked)
	rationale := &SelectionRationale{
		SelectedID:    chosen.Key(),
		SelectedAngle: chosen.Angle,
		SelectedRank:  chosen.Rank,
		TopGap:        gap,
		LowConfidence: gap < b.lowConfidenceGap,
		Scoreboard:    b.scoreboard(ranked),
	}

	reason := strings.TrimSpace(chosen.Reason)
	if reason == "" {
		if chosen.Key() == ranked[0].Key() {
			reason = fmt.Sprintf("Selected %s because it ranked first with a %s-point lead.", chosen.Key(), formatPoints(gap))
		} else {
			reason = fmt.Sprintf("Selected %s at rank %d; the top-ranked candidate led by %s points.", chosen.Key(), chosen.Rank, formatPoints(gap))
		}
	}
	if rationale.LowConfidence {
		reason += fmt.Sprintf(" Caution: the lead is under %s points, so this is a low-confidence selection that should be reviewed before automatic execution.", formatPoints(b.lowConfidenceGap))
	}
	rationale.Reason = reason

	return rationale, nil
}

func (b *Builder) scoreboard(ranked []RankedCandidate) []ScoreboardEntry {
	n := len(ranked)
	if n > b.scoreboardSize {
		n = b.scoreboardSize
	}
	board := make([]ScoreboardEntry, n)
	for i := 0; i < n; i++ {
		board[i] = ScoreboardEntry{
			Rank:        ranked[i].Rank,
			CandidateID: ranked[i].Key(),
			Angle:       ranked[i].Angle,
			Score:       round2(ranked[i].Score),
		}
	}
	return board
}

// formatPoints prints a score with at least one decimal: 8 → "8.0", 1.25 → "1.25".
func formatPoints(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
