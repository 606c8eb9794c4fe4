// Package jsonl stores the task ledger as JSON Lines: one canonical event
// per line, appended under an exclusive writer lock.
package jsonl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steveyegge/tally/internal/events"
)

// Ledger is a JSONL file ledger. Reads never take the lock; appends do.
type Ledger struct {
	path string
}

// New returns a ledger at path. The file is created on first append.
func New(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	return &Ledger{path: path}, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Events loads every event in ledger order. A missing file is reported
// with an error wrapping os.ErrNotExist.
func (l *Ledger) Events(ctx context.Context) ([]*events.TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return events.ReadFile(l.path)
}

// Append validates ev and writes it as the last line of the ledger. The
// existing ledger must load cleanly and must not already hold ev's ID.
func (l *Ledger) Append(ctx context.Context, ev *events.TaskEvent) error {
	return l.AppendIf(ctx, ev, nil)
}

// AppendIf is Append with check run against the existing events while the
// writer lock is held. A nil check always passes.
func (l *Ledger) AppendIf(ctx context.Context, ev *events.TaskEvent, check events.Precondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid event: %w", err)
	}
	line, err := events.Encode(ev)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	release, err := acquireLock(l.path)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("failed to release ledger lock", "path", l.path, "error", err)
		}
	}()

	existing, err := events.ReadFile(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ledger is unreadable, refusing to append: %w", err)
	}
	for _, prev := range existing {
		if prev.ID == ev.ID {
			return fmt.Errorf("duplicate event_id %s", ev.ID)
		}
	}
	if check != nil {
		if err := check(existing); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	needsNewline, err := missingFinalNewline(l.path)
	if err != nil {
		return err
	}
	if needsNewline {
		line = append([]byte{'\n'}, line...)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append event %s: %w", ev.ID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}

	slog.Debug("event appended", "ledger", l.path, "event_id", ev.ID, "task_id", ev.TaskID, "type", ev.Type)
	return nil
}

// Close is a no-op; the ledger holds no open handles between calls.
func (l *Ledger) Close() error { return nil }

// missingFinalNewline reports whether a non-empty file ends without '\n'.
func missingFinalNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read ledger tail: %w", err)
	}
	return last[0] != '\n', nil
}
