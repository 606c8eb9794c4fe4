// Package ranking orders competing candidates deterministically and explains
// the selection.
//
// The order is total: score descending, then risk (low, medium, high,
// critical, then any other label), then identifier, with angle and reason
// as last resorts. Ranking the same set in any input
// order yields the same ranks, and re-ranking a ranked list changes nothing.
package ranking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Candidate is a proposal competing for selection.
type Candidate struct {
	CandidateID string  `json:"candidate_id"`
	Strategy    string  `json:"strategy"`
	Angle       string  `json:"angle"`
	Score       float64 `json:"score"`
	Risk        string  `json:"risk"`
	Reason      string  `json:"reason,omitempty"`
}

// Key is the identifier used for tie-breaking and display: candidate_id,
// or strategy when no id was given.
func (c Candidate) Key() string {
	if c.CandidateID != "" {
		return c.CandidateID
	}
	return c.Strategy
}

// TypeConversionError reports a field whose value cannot be converted to
// the type the ranking needs.
type TypeConversionError struct {
	Field string
	Value string
	Want  string
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s %s to %s", e.Field, e.Value, e.Want)
}

// Rejection is an input entry that could not be ranked.
type Rejection struct {
	// Index is the entry's position in the input
	Index int `json:"index"`
	// Raw is the entry as received
	Raw string `json:"raw"`
	// Reason is a human-readable explanation
	Reason string `json:"reason"`
	// Err is the typed cause, when there is one
	Err error `json:"-"`
}

// Partition splits raw input records into rankable candidates and rejected
// entries. Nothing is dropped silently: every input lands in exactly one of
// the two results.
func Partition(records []json.RawMessage) (valid []Candidate, rejected []Rejection) {
	for i, raw := range records {
		c, err := decodeCandidate(raw)
		if err != nil {
			rejected = append(rejected, Rejection{
				Index:  i,
				Raw:    compact(raw),
				Reason: err.Error(),
				Err:    err,
			})
			continue
		}
		valid = append(valid, c)
	}
	return valid, rejected
}

func decodeCandidate(raw json.RawMessage) (Candidate, error) {
	var fields map[string]json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Candidate{}, fmt.Errorf("not a structured record")
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Candidate{}, fmt.Errorf("not a structured record: %w", err)
	}

	var (
		c   Candidate
		err error
	)
	if c.CandidateID, err = textField(fields, "candidate_id"); err != nil {
		return Candidate{}, err
	}
	if c.Strategy, err = textField(fields, "strategy"); err != nil {
		return Candidate{}, err
	}
	if c.Angle, err = textField(fields, "angle"); err != nil {
		return Candidate{}, err
	}
	if c.Angle == "" {
		if c.Angle, err = textField(fields, "stance"); err != nil {
			return Candidate{}, err
		}
	}
	if c.Risk, err = textField(fields, "risk"); err != nil {
		return Candidate{}, err
	}
	if c.Reason, err = textField(fields, "reason"); err != nil {
		return Candidate{}, err
	}
	if c.Score, err = coerceScore("score", fields["score"]); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// textField reads a string field. Numbers are accepted in their literal
// form; null or absent fields are empty.
func textField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", &TypeConversionError{Field: name, Value: compact(raw), Want: "string"}
	}
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case float64:
		return strings.TrimSpace(string(raw)), nil
	}
	return "", &TypeConversionError{Field: name, Value: compact(raw), Want: "string"}
}

// coerceScore converts a score. Missing and falsy values (null, false, 0,
// "") become 0; numeric strings are parsed; true is 1.
func coerceScore(name string, raw json.RawMessage) (float64, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &TypeConversionError{Field: name, Value: compact(raw), Want: "number"}
	}
	switch x := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, &TypeConversionError{Field: name, Value: strconv.Quote(x), Want: "number"}
		}
		return f, nil
	}
	return 0, &TypeConversionError{Field: name, Value: compact(raw), Want: "number"}
}

func compact(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return b.String()
}
