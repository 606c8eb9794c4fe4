package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// MalformedEventError reports a ledger record that cannot be used. Loading
// stops at the first one: skipping it would let the projection diverge from
// the true history without any signal.
type MalformedEventError struct {
	// Source names the ledger (file path or database path)
	Source string
	// Line is the 1-based line number (or row sequence for database ledgers)
	Line int
	// Reason describes what is wrong with the record
	Reason string
	// Err is the underlying decode or validation error, if any
	Err error
}

func (e *MalformedEventError) Error() string {
	if e == nil {
		return ""
	}
	loc := e.Source
	if loc == "" {
		loc = "ledger"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s:%d: malformed event: %s: %v", loc, e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s:%d: malformed event: %s", loc, e.Line, e.Reason)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// ParseLine decodes and validates a single ledger line. Unknown fields and
// trailing data are rejected.
func ParseLine(line []byte) (*TaskEvent, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, errors.New("empty line")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var ev TaskEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after event record")
	}

	if ev.Payload == nil {
		ev.Payload = map[string]interface{}{}
	}
	ev.Timestamp = ev.Timestamp.UTC()

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ParseLog reads an entire ledger in order. Any blank, truncated, invalid or
// duplicate record fails the whole load with a *MalformedEventError.
func ParseLog(r io.Reader, source string) ([]*TaskEvent, error) {
	br := bufio.NewReader(r)
	var (
		out  []*TaskEvent
		seen = make(map[string]int)
		line int
	)

	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("reading %s: %w", source, readErr)
		}
		if len(raw) == 0 && readErr == io.EOF {
			break
		}
		line++

		partial := readErr == io.EOF
		ev, err := ParseLine(raw)
		if err != nil {
			reason := "invalid record"
			if partial {
				reason = "truncated or invalid final record"
			}
			return nil, &MalformedEventError{Source: source, Line: line, Reason: reason, Err: err}
		}
		if first, dup := seen[ev.ID]; dup {
			return nil, &MalformedEventError{
				Source: source,
				Line:   line,
				Reason: fmt.Sprintf("duplicate event_id %s (first seen on line %d)", ev.ID, first),
			}
		}
		seen[ev.ID] = line
		out = append(out, ev)

		if partial {
			break
		}
	}

	return out, nil
}

// ReadFile loads a JSONL ledger from disk.
func ReadFile(path string) ([]*TaskEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()
	return ParseLog(f, path)
}

// Encode renders the canonical single-line JSON form of an event, without a
// trailing newline. Payload keys are sorted by encoding/json.
func Encode(ev *TaskEvent) ([]byte, error) {
	c := *ev
	c.Timestamp = ev.Timestamp.UTC()
	if c.Payload == nil {
		c.Payload = map[string]interface{}{}
	}
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	return data, nil
}
