package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/types"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), ".tally", "events.jsonl"))
	require.NoError(t, err)
	return l
}

func TestAppendThenEventsPreservesOrder(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	appended := []*events.TaskEvent{
		events.NewCreatedEvent("T1", "alice", "Ship ledger", events.CreateOptions{}),
		events.NewStatusChangedEvent("T1", "alice", types.StatusInProgress, ""),
		events.NewCommentedEvent("T1", "bob", "on it"),
	}
	for _, ev := range appended {
		require.NoError(t, l.Append(ctx, ev))
	}

	got, err := l.Events(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(appended))
	for i := range appended {
		assert.Equal(t, appended[i].ID, got[i].ID)
		assert.Equal(t, appended[i].Type, got[i].Type)
		assert.True(t, appended[i].Timestamp.Equal(got[i].Timestamp))
	}

	_, err = os.Stat(LockPath(l.Path()))
	assert.True(t, os.IsNotExist(err), "lock must be released after append")
}

func TestAppendRejectsDuplicateAndInvalidEvents(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	ev := events.NewCreatedEvent("T1", "alice", "Ship ledger", events.CreateOptions{})
	require.NoError(t, l.Append(ctx, ev))

	err := l.Append(ctx, ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate event_id")

	bad := events.NewEvent(events.EventTypeCreated, "T2", "alice", nil)
	err = l.Append(ctx, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload.title")

	got, err := l.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAppendRepairsMissingFinalNewline(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	first := events.NewCreatedEvent("T1", "alice", "Ship ledger", events.CreateOptions{})
	line, err := events.Encode(first)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0755))
	require.NoError(t, os.WriteFile(l.Path(), line, 0644))

	require.NoError(t, l.Append(ctx, events.NewClosedEvent("T1", "alice", "")))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	got, err := l.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAppendRefusesCorruptLedger(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0755))
	require.NoError(t, os.WriteFile(l.Path(), []byte("{garbage\n"), 0644))

	err := l.Append(context.Background(), events.NewCommentedEvent("T1", "a", "x"))
	require.Error(t, err)
	var malformed *events.MalformedEventError
	assert.True(t, errors.As(err, &malformed))
}

func TestEventsOnMissingLedger(t *testing.T) {
	l := newLedger(t)
	_, err := l.Events(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEventsHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := newLedger(t)
	_, err := l.Events(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, l.Append(ctx, events.NewCommentedEvent("T1", "a", "x")), context.Canceled)
}

func TestAppendBlockedByLiveLock(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0755))

	host, err := os.Hostname()
	require.NoError(t, err)
	writeLock(t, l.Path(), WriterLock{Holder: "tally", PID: os.Getpid(), Hostname: host, StartedAt: time.Now()})

	err = l.Append(context.Background(), events.NewCommentedEvent("T1", "a", "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAppendReclaimsStaleLock(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0755))

	host, err := os.Hostname()
	require.NoError(t, err)
	// PIDs near the max are effectively never in use.
	writeLock(t, l.Path(), WriterLock{Holder: "tally", PID: 4194303, Hostname: host, StartedAt: time.Now()})

	require.NoError(t, l.Append(context.Background(), events.NewCommentedEvent("T1", "a", "x")))
	_, err = os.Stat(LockPath(l.Path()))
	assert.True(t, os.IsNotExist(err))
}

func TestAppendUnreadableLock(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		age        time.Duration
		wantLocked bool
	}{
		{name: "empty and fresh", content: "", wantLocked: true},
		{name: "garbage and fresh", content: "{half", wantLocked: true},
		{name: "empty and abandoned", content: "", age: 2 * unreadableLockGrace},
		{name: "garbage and abandoned", content: "{half", age: 2 * unreadableLockGrace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0755))
			lockPath := LockPath(l.Path())
			require.NoError(t, os.WriteFile(lockPath, []byte(tt.content), 0644))
			if tt.age > 0 {
				old := time.Now().Add(-tt.age)
				require.NoError(t, os.Chtimes(lockPath, old, old))
			}

			err := l.Append(context.Background(), events.NewCommentedEvent("T1", "a", "x"))
			if tt.wantLocked {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrLocked)
				data, readErr := os.ReadFile(lockPath)
				require.NoError(t, readErr)
				assert.Equal(t, tt.content, string(data), "a held lock must not be replaced")
				return
			}
			require.NoError(t, err)
			_, err = os.Stat(lockPath)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestAppendLeavesNoTempLockFiles(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Append(context.Background(), events.NewCommentedEvent("T1", "a", "x")))

	entries, err := os.ReadDir(filepath.Dir(l.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(l.Path()), entries[0].Name())
}

func TestAppendIfRunsCheckAgainstExistingEvents(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	first := events.NewCreatedEvent("T1", "alice", "Ship ledger", events.CreateOptions{})
	require.NoError(t, l.AppendIf(ctx, first, func(existing []*events.TaskEvent) error {
		assert.Empty(t, existing)
		return nil
	}))

	refused := errors.New("task already has an owner")
	var seen []string
	err := l.AppendIf(ctx, events.NewReassignedEvent("T1", "alice", "bob"), func(existing []*events.TaskEvent) error {
		for _, ev := range existing {
			seen = append(seen, ev.ID)
		}
		_, held := os.Stat(LockPath(l.Path()))
		assert.NoError(t, held, "check must run under the writer lock")
		return refused
	})
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, []string{first.ID}, seen)

	got, err := l.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1, "refused event must not be written")
	_, err = os.Stat(LockPath(l.Path()))
	assert.True(t, os.IsNotExist(err), "lock must be released after a refusal")
}

func writeLock(t *testing.T, ledgerPath string, lock WriterLock) {
	t.Helper()
	data, err := json.Marshal(lock)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(LockPath(ledgerPath), data, 0644))
}
