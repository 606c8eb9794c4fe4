package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/steveyegge/tally/internal/events"
	"github.com/steveyegge/tally/internal/storage/jsonl"
	"github.com/steveyegge/tally/internal/storage/sqlite"
)

// Ledger is an append-only store of task events. Events returns the full
// sequence in ledger order; there is no update or delete. AppendIf runs
// check against the current sequence inside the same critical section as
// the write, so no other writer can append in between.
type Ledger interface {
	Append(ctx context.Context, ev *events.TaskEvent) error
	AppendIf(ctx context.Context, ev *events.TaskEvent, check events.Precondition) error
	Events(ctx context.Context) ([]*events.TaskEvent, error)
	Path() string
	Close() error
}

// Backend names a ledger storage format.
type Backend string

const (
	BackendJSONL  Backend = "jsonl"
	BackendSQLite Backend = "sqlite"
)

// BackendFor picks the backend from the path: .db, .sqlite and :memory:
// select SQLite, anything else is JSON Lines.
func BackendFor(path string) Backend {
	if path == sqlite.MemoryPath {
		return BackendSQLite
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return BackendSQLite
	}
	return BackendJSONL
}

// Config holds ledger configuration
type Config struct {
	// Path is the ledger location
	// Default: ".tally/events.jsonl"
	// Special value ":memory:" creates an in-memory SQLite ledger (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: filepath.Join(".tally", "events.jsonl"),
	}
}

// Open returns the ledger backend for cfg.Path.
func Open(ctx context.Context, cfg *Config) (Ledger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	backend := BackendFor(cfg.Path)
	slog.Debug("opening ledger", "path", cfg.Path, "backend", backend)

	switch backend {
	case BackendSQLite:
		return sqlite.New(cfg.Path)
	default:
		return jsonl.New(cfg.Path)
	}
}

// Copy appends every event of src to dst in order and returns how many
// were copied. It stops at the first failure.
func Copy(ctx context.Context, dst, src Ledger) (int, error) {
	evs, err := src.Events(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", src.Path(), err)
	}
	for i, ev := range evs {
		if err := dst.Append(ctx, ev); err != nil {
			return i, fmt.Errorf("writing event %s to %s: %w", ev.ID, dst.Path(), err)
		}
	}
	return len(evs), nil
}
