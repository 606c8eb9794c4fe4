// Package sqlite stores the task ledger in an insert-only SQLite table.
// Ledger order is the autoincrement seq column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/steveyegge/tally/internal/events"
)

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// Ledger is a SQLite-backed task ledger.
type Ledger struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the ledger database at path and migrates
// its schema.
func New(path string) (*Ledger, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Path returns the database path.
func (l *Ledger) Path() string { return l.path }

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Append validates ev and inserts it after every existing event.
func (l *Ledger) Append(ctx context.Context, ev *events.TaskEvent) error {
	return l.AppendIf(ctx, ev, nil)
}

// AppendIf is Append with check run against the existing events inside the
// inserting transaction. File databases begin it with BEGIN IMMEDIATE, so
// a concurrent writer waits until it commits. A nil check always passes.
func (l *Ledger) AppendIf(ctx context.Context, ev *events.TaskEvent, check events.Precondition) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid event: %w", err)
	}
	payload := ev.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if check != nil {
		existing, err := l.loadEvents(ctx, tx)
		if err != nil {
			return fmt.Errorf("ledger is unreadable, refusing to append: %w", err)
		}
		if err := check(existing); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_events (event_id, task_id, type, timestamp, actor, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.TaskID,
		string(ev.Type),
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Actor,
		string(payloadJSON),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("duplicate event_id %s", ev.ID)
		}
		return fmt.Errorf("failed to append event (type=%s, task=%s): %w", ev.Type, ev.TaskID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event %s: %w", ev.ID, err)
	}

	slog.Debug("event appended", "ledger", l.path, "event_id", ev.ID, "task_id", ev.TaskID, "type", ev.Type)
	return nil
}

// row mirrors the JSONL wire form so rows are validated by the same parser.
type row struct {
	ID        string          `json:"event_id"`
	TaskID    string          `json:"task_id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
}

// Events returns every event ordered by seq. A row that fails validation
// aborts the load with a *events.MalformedEventError whose Line is the seq.
func (l *Ledger) Events(ctx context.Context) ([]*events.TaskEvent, error) {
	return l.loadEvents(ctx, l.db)
}

func (l *Ledger) loadEvents(ctx context.Context, q queryer) ([]*events.TaskEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seq, event_id, task_id, type, timestamp, actor, payload
		FROM task_events
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*events.TaskEvent
	for rows.Next() {
		var (
			seq     int
			r       row
			payload string
		)
		if err := rows.Scan(&seq, &r.ID, &r.TaskID, &r.Type, &r.Timestamp, &r.Actor, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.Payload = json.RawMessage(payload)

		ev, err := decodeRow(r)
		if err != nil {
			return nil, &events.MalformedEventError{
				Source: l.path,
				Line:   seq,
				Reason: fmt.Sprintf("invalid row (seq %d)", seq),
				Err:    err,
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

func decodeRow(r row) (*events.TaskEvent, error) {
	if !json.Valid(r.Payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	line, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return events.ParseLine(line)
}

