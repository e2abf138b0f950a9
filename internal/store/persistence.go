package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/fungimap/internal/session"
)

// DefaultSlot is the storage slot used when none is configured.
const DefaultSlot = "default"

// Persistence stores session and profile documents in SQLite. It satisfies
// session.Persistence. Each slot holds one session document and one profile,
// mirroring a browser's session and local storage.
type Persistence struct {
	db   *DB
	slot string
}

var _ session.Persistence = (*Persistence)(nil)

// NewPersistence returns a Persistence bound to slot.
func NewPersistence(db *DB, slot string) *Persistence {
	if slot == "" {
		slot = DefaultSlot
	}
	return &Persistence{db: db, slot: slot}
}

// Slot returns the storage slot name.
func (p *Persistence) Slot() string { return p.slot }

func (p *Persistence) LoadSession(ctx context.Context) (*session.State, error) {
	var doc string
	err := p.db.QueryRowContext(ctx, `SELECT document FROM session_documents WHERE slot = ?`, p.slot).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session document: %w", err)
	}
	return session.DecodeState([]byte(doc))
}

// SaveSession writes the session document and keeps the sessions row in step.
// A new session id in the slot completes the previous session.
func (p *Persistence) SaveSession(ctx context.Context, s *session.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	var prev string
	err = p.db.QueryRowContext(ctx, `SELECT session_id FROM session_documents WHERE slot = ?`, p.slot).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check session slot: %w", err)
	}
	if prev != "" && prev != s.SessionID {
		if err := p.db.EndSession(ctx, prev); err != nil {
			return err
		}
	}
	if _, err := p.db.InitSession(ctx, s.SessionID, "", s.StartedAt); err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO session_documents (slot, session_id, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			session_id = excluded.session_id,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, p.slot, s.SessionID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save session document: %w", err)
	}
	return nil
}

func (p *Persistence) LoadProfile(ctx context.Context) (*session.Profile, error) {
	var doc string
	err := p.db.QueryRowContext(ctx, `SELECT document FROM profiles WHERE slot = ?`, p.slot).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return session.DecodeProfile([]byte(doc))
}

func (p *Persistence) SaveProfile(ctx context.Context, prof *session.Profile) error {
	data, err := json.Marshal(prof)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO profiles (slot, browser_id, document, last_visit, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			browser_id = excluded.browser_id,
			document = excluded.document,
			last_visit = excluded.last_visit,
			updated_at = excluded.updated_at
	`, p.slot, prof.BrowserID, string(data), prof.LastVisit, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ClearSession drops the slot's session document so the next Load starts a
// fresh session while keeping the profile. The previous session is completed.
func (p *Persistence) ClearSession(ctx context.Context) error {
	var prev string
	err := p.db.QueryRowContext(ctx, `SELECT session_id FROM session_documents WHERE slot = ?`, p.slot).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check session slot: %w", err)
	}
	if err := p.db.EndSession(ctx, prev); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM session_documents WHERE slot = ?`, p.slot); err != nil {
		return fmt.Errorf("clear session document: %w", err)
	}
	return nil
}

// Recorder returns a session change listener that appends every tracked
// action to the audit log. Failures go to onErr.
func (p *Persistence) Recorder(sessionID func() string, onErr func(error)) func(session.Change) {
	return func(c session.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		id := sessionID()
		if _, err := p.db.InitSession(ctx, id, "", 0); err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		if err := p.db.AddAction(ctx, id, c.Action); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
