package events

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lineCreated = `{"event_id":"e1","task_id":"T1","type":"created","timestamp":"2026-01-05T09:00:00Z","actor":"alice","payload":{"title":"Ship ledger","status":"open"}}`
	lineDone    = `{"event_id":"e2","task_id":"T1","type":"status_changed","timestamp":"2026-01-05T10:00:00Z","actor":"alice","payload":{"status":"done"}}`
)

func TestParseLogReadsEventsInOrder(t *testing.T) {
	evs, err := ParseLog(strings.NewReader(lineCreated+"\n"+lineDone+"\n"), "events.jsonl")
	require.NoError(t, err)
	require.Len(t, evs, 2)

	assert.Equal(t, "e1", evs[0].ID)
	assert.Equal(t, EventTypeCreated, evs[0].Type)
	assert.Equal(t, "Ship ledger", evs[0].PayloadString(FieldTitle))
	assert.Equal(t, "e2", evs[1].ID)
	assert.Equal(t, "done", evs[1].PayloadString(FieldStatus))
}

func TestParseLogAcceptsFinalLineWithoutNewline(t *testing.T) {
	evs, err := ParseLog(strings.NewReader(lineCreated+"\n"+lineDone), "events.jsonl")
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestParseLogEmptyInput(t *testing.T) {
	evs, err := ParseLog(strings.NewReader(""), "events.jsonl")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestParseLogRejectsMalformedLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		contains string
	}{
		{
			name:     "garbage line",
			input:    lineCreated + "\nnot json\n",
			wantLine: 2,
			contains: "decode",
		},
		{
			name:     "blank line in the middle",
			input:    lineCreated + "\n\n" + lineDone + "\n",
			wantLine: 2,
			contains: "empty line",
		},
		{
			name:     "truncated final record",
			input:    lineCreated + "\n" + lineDone[:40],
			wantLine: 2,
			contains: "truncated",
		},
		{
			name:     "unknown event type",
			input:    `{"event_id":"e1","task_id":"T1","type":"archived","timestamp":"2026-01-05T09:00:00Z","actor":"a","payload":{}}` + "\n",
			wantLine: 1,
			contains: "unknown event type",
		},
		{
			name:     "unknown top-level field",
			input:    `{"event_id":"e1","task_id":"T1","type":"commented","timestamp":"2026-01-05T09:00:00Z","actor":"a","payload":{"comment":"x"},"extra":1}` + "\n",
			wantLine: 1,
			contains: "unknown field",
		},
		{
			name:     "missing actor",
			input:    `{"event_id":"e1","task_id":"T1","type":"commented","timestamp":"2026-01-05T09:00:00Z","payload":{"comment":"x"}}` + "\n",
			wantLine: 1,
			contains: "actor is required",
		},
		{
			name:     "bad timestamp",
			input:    `{"event_id":"e1","task_id":"T1","type":"closed","timestamp":"yesterday","actor":"a","payload":{}}` + "\n",
			wantLine: 1,
			contains: "decode",
		},
		{
			name:     "invalid status value",
			input:    lineCreated + "\n" + `{"event_id":"e2","task_id":"T1","type":"status_changed","timestamp":"2026-01-05T10:00:00Z","actor":"a","payload":{"status":"archived"}}` + "\n",
			wantLine: 2,
			contains: "payload.status",
		},
		{
			name:     "duplicate event id",
			input:    lineCreated + "\n" + lineCreated + "\n",
			wantLine: 2,
			contains: "duplicate event_id e1",
		},
		{
			name:     "two records on one line",
			input:    lineCreated + lineDone + "\n",
			wantLine: 1,
			contains: "trailing data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs, err := ParseLog(strings.NewReader(tt.input), "events.jsonl")
			require.Error(t, err)
			assert.Nil(t, evs)

			var malformed *MalformedEventError
			require.True(t, errors.As(err, &malformed), "expected MalformedEventError, got %T", err)
			assert.Equal(t, tt.wantLine, malformed.Line)
			assert.Equal(t, "events.jsonl", malformed.Source)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "events.jsonl:")
		})
	}
}

func TestParseLineNormalizesTimestampToUTC(t *testing.T) {
	ev, err := ParseLine([]byte(`{"event_id":"e1","task_id":"T1","type":"closed","timestamp":"2026-01-05T11:00:00+02:00","actor":"a","payload":null}`))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-05T09:00:00Z", ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	assert.NotNil(t, ev.Payload)
}

func TestEncodeIsCanonical(t *testing.T) {
	ev, err := ParseLine([]byte(`{"payload":{"status":"open","title":"Ship ledger"},"actor":"alice","timestamp":"2026-01-05T09:00:00Z","type":"created","task_id":"T1","event_id":"e1"}`))
	require.NoError(t, err)

	data, err := Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, lineCreated, string(data))

	again, err := ParseLine(data)
	require.NoError(t, err)
	data2, err := Encode(again)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}
