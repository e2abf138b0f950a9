package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lazypower/fungimap/internal/session"
)

// maxQuerySize caps the stored search query text.
const maxQuerySize = 1024

// ActionRecord is one row of the interaction audit log.
type ActionRecord struct {
	ID        int64
	ActionID  string
	SessionID string
	Type      string
	Slug      string
	Query     string
	Payload   string
	CreatedAt int64
}

// Action decodes the stored payload back into a session action.
func (r ActionRecord) Action() (session.Action, error) {
	var a session.Action
	if err := json.Unmarshal([]byte(r.Payload), &a); err != nil {
		return session.Action{}, fmt.Errorf("decode action %s: %w", r.ActionID, err)
	}
	return a, nil
}

// AddAction appends an action to the audit log and bumps the session's
// action count. Re-adding the same action id is ignored.
func (db *DB) AddAction(ctx context.Context, sessionID string, a session.Action) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	query := a.Query
	if len(query) > maxQuerySize {
		query = query[:maxQuerySize]
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add action: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO actions (action_id, session_id, type, slug, query, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, sessionID, string(a.Type), nullable(a.Slug), nullable(query), string(payload), a.Timestamp)
	if err != nil {
		return fmt.Errorf("add action: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET action_count = action_count + 1 WHERE session_id = ?
		`, sessionID); err != nil {
			return fmt.Errorf("increment action count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add action: %w", err)
	}
	return nil
}

const actionColumns = `id, action_id, session_id, type, COALESCE(slug, ''), COALESCE(query, ''), COALESCE(payload, ''), created_at`

// GetActions returns all logged actions for a session, oldest first.
func (db *DB) GetActions(ctx context.Context, sessionID string) ([]ActionRecord, error) {
	return db.queryActions(ctx, `
		SELECT `+actionColumns+`
		FROM actions WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
}

// GetRecentActions returns the most recent actions across all sessions.
func (db *DB) GetRecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	return db.queryActions(ctx, `
		SELECT `+actionColumns+`
		FROM actions ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
}

func (db *DB) queryActions(ctx context.Context, q string, args ...any) ([]ActionRecord, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.ID, &r.ActionID, &r.SessionID, &r.Type, &r.Slug, &r.Query, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountActions returns the number of logged actions for a session.
func (db *DB) CountActions(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return count, nil
}

// TopSlugs returns the most frequently touched entity slugs across all
// sessions with their action counts.
func (db *DB) TopSlugs(ctx context.Context, limit int) ([]SlugCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT slug, COUNT(*) AS n FROM actions
		WHERE slug IS NOT NULL AND slug != ''
		GROUP BY slug ORDER BY n DESC, slug LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top slugs: %w", err)
	}
	defer rows.Close()

	var out []SlugCount
	for rows.Next() {
		var sc SlugCount
		if err := rows.Scan(&sc.Slug, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan slug count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SlugCount pairs an entity slug with an action count.
type SlugCount struct {
	Slug  string
	Count int
}
