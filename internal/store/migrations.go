package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "sessions: browsing session lifecycle",
		SQL: `
CREATE TABLE sessions (
    id            INTEGER PRIMARY KEY,
    session_id    TEXT NOT NULL UNIQUE,
    browser_id    TEXT,
    started_at    INTEGER NOT NULL,
    ended_at      INTEGER,
    status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
    action_count  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_sessions_status     ON sessions(status);
CREATE INDEX idx_sessions_started_at ON sessions(started_at DESC);
`,
	},
	{
		Version:     2,
		Description: "session_documents: full session state per slot",
		SQL: `
CREATE TABLE session_documents (
    slot        TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    document    TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "profiles: long-lived aggregates per slot",
		SQL: `
CREATE TABLE profiles (
    slot        TEXT PRIMARY KEY,
    browser_id  TEXT NOT NULL,
    document    TEXT NOT NULL,
    last_visit  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "actions: append-only interaction audit log",
		SQL: `
CREATE TABLE actions (
    id          INTEGER PRIMARY KEY,
    action_id   TEXT NOT NULL UNIQUE,
    session_id  TEXT NOT NULL,
    type        TEXT NOT NULL,
    slug        TEXT,
    query       TEXT,
    payload     TEXT,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_actions_session ON actions(session_id);
CREATE INDEX idx_actions_created ON actions(created_at DESC);
CREATE INDEX idx_actions_slug    ON actions(slug);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
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

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
