package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is a forward-only schema change.
type migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema with sessions and events",
		Up: `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_ns  INTEGER NOT NULL,
    ended_ns    INTEGER,
    host        TEXT
);

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    at_ns       INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    element     TEXT NOT NULL,
    state       TEXT NOT NULL,
    elapsed_us  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, at_ns);
`,
	},
	{
		Version:     2,
		Description: "Track handled invocations and index events by element",
		Up: `
ALTER TABLE events ADD COLUMN handled INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_events_element ON events(element, at_ns);
`,
	},
}

// SchemaVersion is the version the journal migrates to.
func SchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}
