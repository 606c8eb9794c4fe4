package ranking

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// RankedCandidate is a candidate with its position in the total order.
// Score is canonicalized to two decimals.
type RankedCandidate struct {
	Candidate
	Rank int `json:"rank"`
}

// UnmarshalJSON accepts ranked lists produced by other tools, where rank and
// score may arrive as strings or nulls.
func (r *RankedCandidate) UnmarshalJSON(data []byte) error {
	c, err := decodeCandidate(data)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rank, err := coerceScore("rank", fields["rank"])
	if err != nil {
		return err
	}
	if rank != math.Trunc(rank) || rank < 0 {
		return &TypeConversionError{Field: "rank", Value: compact(fields["rank"]), Want: "integer"}
	}
	c.Score = round2(c.Score)
	*r = RankedCandidate{Candidate: c, Rank: int(rank)}
	return nil
}

// Rank orders candidates and assigns ranks 1..N. The input slice and its
// elements are left untouched; the result holds copies.
func Rank(candidates []Candidate) []RankedCandidate {
	ranked := make([]RankedCandidate, len(candidates))
	for i, c := range candidates {
		c.Score = round2(c.Score)
		ranked[i] = RankedCandidate{Candidate: c}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i].Candidate, ranked[j].Candidate)
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// riskLevels orders the known risk labels. Matching is case-sensitive;
// any other label sorts after all of these, by plain string order.
var riskLevels = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

func compareRisk(a, b string) int {
	la, oka := riskLevels[a]
	lb, okb := riskLevels[b]
	switch {
	case oka && okb:
		return la - lb
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(a, b)
}

// less is the ranking order: (-score, risk, key, angle, reason, strategy).
// Scores are compared after rounding so re-ranking is a no-op.
func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := compareRisk(a.Risk, b.Risk); c != 0 {
		return c < 0
	}
	if a.Key() != b.Key() {
		return a.Key() < b.Key()
	}
	if a.Angle != b.Angle {
		return a.Angle < b.Angle
	}
	if a.Reason != b.Reason {
		return a.Reason < b.Reason
	}
	return a.Strategy < b.Strategy
}

// Candidates strips ranks, for feeding a ranked list back into Rank.
func Candidates(ranked []RankedCandidate) []Candidate {
	out := make([]Candidate, len(ranked))
	for i, r := range ranked {
		out[i] = r.Candidate
	}
	return out
}

// TopGap is the score lead of rank 1 over rank 2, rounded to two decimals.
// An empty list has no lead (0); a lone candidate is uncontested (1).
func TopGap(ranked []RankedCandidate) float64 {
	switch len(ranked) {
	case 0:
		return 0.0
	case 1:
		return 1.0
	}
	return round2(ranked[0].Score - ranked[1].Score)
}

// ValidateRanks checks that ranks are exactly 1..N in order.
func ValidateRanks(ranked []RankedCandidate) error {
	for i, r := range ranked {
		if r.Rank != i+1 {
			return fmt.Errorf("rank at position %d is %d, want %d", i, r.Rank, i+1)
		}
	}
	return nil
}

func round2(x float64) float64 {
	r := math.Round(x*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// sortByRank orders by rank, with unranked (zero) entries last.
func sortByRank(ranked []RankedCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].Rank, ranked[j].Rank
		if ri == 0 || rj == 0 {
			return rj == 0 && ri != 0
		}
		return ri < rj
	})
}
