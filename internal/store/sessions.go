package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one browsing session row.
type Session struct {
	ID          int64
	SessionID   string
	BrowserID   string
	StartedAt   int64
	EndedAt     *int64
	Status      string
	ActionCount int
}

const sessionColumns = `id, session_id, COALESCE(browser_id, ''), started_at, ended_at, status, action_count`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.SessionID, &s.BrowserID, &s.StartedAt, &s.EndedAt, &s.Status, &s.ActionCount); err != nil {
		return nil, err
	}
	return &s, nil
}

// InitSession creates a session row, or reactivates the existing one when
// the session is resumed from a saved document.
func (db *DB) InitSession(ctx context.Context, sessionID, browserID string, startedAt int64) (*Session, error) {
	if startedAt == 0 {
		startedAt = time.Now().UnixMilli()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, browser_id, started_at, status)
		VALUES (?, ?, ?, 'active')
		ON CONFLICT(session_id) DO UPDATE SET
			status = 'active',
			ended_at = NULL,
			browser_id = COALESCE(excluded.browser_id, sessions.browser_id)
	`, sessionID, nullable(browserID), startedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	s, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("session %s missing after insert", sessionID)
	}
	return s, nil
}

// GetSession returns a session by its session_id, or nil when absent.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// EndSession marks an active session completed. Ending an unknown or
// already-completed session is a no-op.
func (db *DB) EndSession(ctx context.Context, sessionID string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE sessions SET status = 'completed', ended_at = COALESCE(ended_at, ?)
		WHERE session_id = ? AND status = 'active'
	`, now, sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// GetRecentSessions returns the most recent sessions, ordered by started_at DESC.
func (db *DB) GetRecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
