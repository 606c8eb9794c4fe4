package verify

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/projection"
)

func ev(n int, et events.EventType, taskID string, payload map[string]interface{}) *events.TaskEvent {
	return &events.TaskEvent{
		ID:        fmt.Sprintf("e%d", n),
		TaskID:    taskID,
		Type:      et,
		Timestamp: time.Date(2026, 1, 5, 9, n, 0, 0, time.UTC),
		Actor:     "alice",
		Payload:   payload,
	}
}

func scenarioEvents() []*events.TaskEvent {
	return []*events.TaskEvent{
		ev(1, events.EventTypeCreated, "T1", map[string]interface{}{"title": "Ship ledger", "status": "open"}),
		ev(2, events.EventTypeCreated, "T2", map[string]interface{}{"title": "Write docs"}),
		ev(3, events.EventTypeStatusChanged, "T1", map[string]interface{}{"status": "done"}),
	}
}

func TestVerifyRenderedBoardIsConsistent(t *testing.T) {
	evs := scenarioEvents()
	persisted := projection.Render(evs, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	res := New(Config{}).Verify(evs, persisted)
	assert.True(t, res.OK)
	assert.Empty(t, res.Diff)
	assert.Empty(t, res.Drift)
	assert.NoError(t, res.Err())
	assert.Equal(t, projection.Digest(evs), res.Digest)
}

func TestVerifyDetectsHandEditedStatus(t *testing.T) {
	evs := scenarioEvents()
	persisted := projection.Render(evs, time.Now())
	edited := strings.Replace(persisted, "| T1 | status | done |", "| T1 | status | open |", 1)
	require.NotEqual(t, persisted, edited)

	res := New(Config{SnapshotName: "BOARD.md"}).Verify(evs, edited)
	require.False(t, res.OK)

	assert.Contains(t, res.Diff, "-| T1 | status | done |")
	assert.Contains(t, res.Diff, "+| T1 | status | open |")
	assert.Contains(t, res.Diff[1], "+++ BOARD.md")

	require.Len(t, res.Drift, 1)
	assert.Equal(t, "T1", res.Drift[0].TaskID)
	assert.Equal(t, DriftChanged, res.Drift[0].Kind)
	assert.Equal(t, []string{"status"}, res.Drift[0].Fields)

	err := res.Err()
	var mismatch *ConsistencyMismatch
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, err.Error(), "T1 changed (status)")
}

func TestVerifyDetectsTaskMovedBetweenGroups(t *testing.T) {
	evs := scenarioEvents()

	// Hand-edit the snapshot so T1 appears as open: rebuild the board from a
	// ledger where T1 never finished and compare against the real ledger.
	stale := projection.Render(evs[:2], time.Now())

	res := New(Config{}).Verify(evs, stale)
	require.False(t, res.OK)
	require.NotEmpty(t, res.Drift)

	var t1 *TaskDrift
	for i := range res.Drift {
		if res.Drift[i].TaskID == "T1" {
			t1 = &res.Drift[i]
		}
	}
	require.NotNil(t, t1)
	assert.Equal(t, DriftMoved, t1.Kind)
	assert.Equal(t, "done", t1.ExpectedGroup)
	assert.Equal(t, "open", t1.SnapshotGroup)
	assert.Contains(t, t1.Fields, "status")

	found := false
	for _, line := range res.Diff {
		if strings.HasPrefix(line, "+") && strings.Contains(line, "| T1 | status | open |") {
			found = true
		}
	}
	assert.True(t, found, "diff should reference T1's status field:\n%s", strings.Join(res.Diff, "\n"))
}

func TestVerifyMissingAndUnexpectedTasks(t *testing.T) {
	evs := scenarioEvents()
	withExtra := append(append([]*events.TaskEvent{}, evs...),
		ev(4, events.EventTypeCreated, "T9", map[string]interface{}{"title": "ghost"}))

	res := New(Config{}).Verify(evs, projection.Render(withExtra, time.Now()))
	require.False(t, res.OK)
	assert.Contains(t, res.Drift, TaskDrift{TaskID: "T9", Kind: DriftUnexpected, SnapshotGroup: "open"})

	res = New(Config{}).Verify(withExtra, projection.Render(evs, time.Now()))
	require.False(t, res.OK)
	assert.Contains(t, res.Drift, TaskDrift{TaskID: "T9", Kind: DriftMissing, ExpectedGroup: "open"})
}

func TestVerifyEmptySnapshot(t *testing.T) {
	res := New(Config{}).Verify(scenarioEvents(), "")
	require.False(t, res.OK)
	assert.NotEmpty(t, res.Diff)
	assert.Len(t, res.Drift, 2)
}

func TestVerifyBoundsDiff(t *testing.T) {
	res := New(Config{MaxDiffLines: 5}).Verify(scenarioEvents(), "")
	require.False(t, res.OK)
	assert.Len(t, res.Diff, 5)
	assert.Greater(t, res.Truncated, 0)
}

func TestNormalizeStripsFirstStampLine(t *testing.T) {
	stamp := "<!-- generated-at: 2026-01-01T00:00:00Z -->\n"
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no stamp", "# Task Board\n\nbody\n", "# Task Board\n\nbody\n"},
		{"one stamp", "# Task Board\n\n" + stamp + "\nbody\n", "# Task Board\n\n\nbody\n"},
		{"second stamp is kept", "# Task Board\n\n" + stamp + "\nbody\n" + stamp, "# Task Board\n\n\nbody\n" + stamp},
		{"stamp without newline", "body\n<!-- generated-at: x -->", "body\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.doc))
		})
	}
}

func TestExtraStampLineIsDrift(t *testing.T) {
	evs := scenarioEvents()
	persisted := projection.Render(evs, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, New(Config{}).Verify(evs, persisted).OK)

	tampered := persisted + projection.StampLine(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) + "\n"
	res := New(Config{}).Verify(evs, tampered)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Diff)
}

func TestWhitespaceEditIsDrift(t *testing.T) {
	evs := scenarioEvents()
	persisted := projection.Render(evs, time.Now()) + "\n"
	res := New(Config{}).Verify(evs, persisted)
	assert.False(t, res.OK)
}
