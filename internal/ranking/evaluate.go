package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/jsonc"
)

// Evaluation is the structured result handed to report generators.
type Evaluation struct {
	Ranked    []RankedCandidate   `json:"ranked"`
	Rejected  []Rejection         `json:"rejected"`
	TopGap    float64             `json:"top_gap"`
	Rationale *SelectionRationale `json:"rationale"`
}

// Evaluate partitions, ranks and explains records in one call. A bad record
// never aborts the ranking of the others; it is reported in Rejected.
func (b *Builder) Evaluate(records []json.RawMessage, selectedID string) (*Evaluation, error) {
	valid, rejected := Partition(records)
	for _, r := range rejected {
		slog.Debug("candidate rejected", "index", r.Index, "reason", r.Reason)
	}

	ranked := Rank(valid)
	rationale, err := b.Build(ranked, selectedID)
	if err != nil {
		return nil, err
	}

	if rejected == nil {
		rejected = []Rejection{}
	}
	return &Evaluation{
		Ranked:    ranked,
		Rejected:  rejected,
		TopGap:    TopGap(ranked),
		Rationale: rationale,
	}, nil
}

// ParseCandidates reads JSONC (JSON with comments and trailing commas)
// holding either a top-level array or an object with a "candidates" array.
func ParseCandidates(data []byte) ([]json.RawMessage, error) {
	stripped := jsonc.ToJSON(data)

	var list []json.RawMessage
	if err := json.Unmarshal(stripped, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Candidates []json.RawMessage `json:"candidates"`
	}
	if err := json.Unmarshal(stripped, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing candidates: %w", err)
	}
	if wrapped.Candidates == nil {
		return nil, fmt.Errorf("parsing candidates: expected an array or an object with a \"candidates\" array")
	}
	return wrapped.Candidates, nil
}

// LoadCandidates reads a candidates file from disk.
func LoadCandidates(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	records, err := ParseCandidates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseRanked reads a ranked list produced upstream, coercing rank and
// score types, and orders it by rank.
func ParseRanked(data []byte) ([]RankedCandidate, error) {
	stripped := jsonc.ToJSON(data)
	var ranked []RankedCandidate
	if err := json.Unmarshal(stripped, &ranked); err != nil {
		var wrapped struct {
			Ranked []RankedCandidate `json:"ranked"`
		}
		if err2 := json.Unmarshal(stripped, &wrapped); err2 != nil || wrapped.Ranked == nil {
			return nil, fmt.Errorf("parsing ranked list: %w", err)
		}
		ranked = wrapped.Ranked
	}
	sortByRank(ranked)
	return ranked, nil
}
