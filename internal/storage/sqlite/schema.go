package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one schema step. Steps are applied in version order inside a
// transaction and recorded in schema_version.
type migration struct {
	Version     int
	Description string
	Statements  []string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "task_events table",
		Statements: []string{`
			CREATE TABLE IF NOT EXISTS task_events (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				event_id TEXT NOT NULL UNIQUE,
				task_id TEXT NOT NULL,
				type TEXT NOT NULL,
				timestamp TEXT NOT NULL,
				actor TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '{}'
			)`,
		},
	},
	{
		Version:     2,
		Description: "forbid updates and deletes",
		Statements: []string{
			`CREATE TRIGGER IF NOT EXISTS task_events_no_update
				BEFORE UPDATE ON task_events
				BEGIN SELECT RAISE(ABORT, 'task_events is append-only'); END`,
			`CREATE TRIGGER IF NOT EXISTS task_events_no_delete
				BEFORE DELETE ON task_events
				BEGIN SELECT RAISE(ABORT, 'task_events is append-only'); END`,
		},
	},
	{
		Version:     3,
		Description: "index events by task",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id, seq)`,
		},
	},
}

// migrate brings db up to the latest schema version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
