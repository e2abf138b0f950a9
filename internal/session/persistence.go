package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Persistence is the storage capability behind a Store. Load methods return
// (nil, nil) when nothing has been saved yet.
type Persistence interface {
	LoadSession(ctx context.Context) (*State, error)
	SaveSession(ctx context.Context, s *State) error
	LoadProfile(ctx context.Context) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}

// MemoryPersistence keeps both documents as JSON bytes in memory, so tests
// exercise the same encode/decode path as durable backends.
type MemoryPersistence struct {
	mu      sync.Mutex
	session []byte
	profile []byte

	// Err, when set, is returned from every call.
	Err error
}

// NewMemoryPersistence returns an empty in-memory backend.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

func (m *MemoryPersistence) LoadSession(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.session == nil {
		return nil, nil
	}
	return DecodeState(m.session)
}

func (m *MemoryPersistence) SaveSession(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.session = data
	return nil
}

func (m *MemoryPersistence) LoadProfile(_ context.Context) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.profile == nil {
		return nil, nil
	}
	return DecodeProfile(m.profile)
}

func (m *MemoryPersistence) SaveProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	m.profile = data
	return nil
}

// SetRaw replaces the stored documents verbatim. Used to simulate corrupt storage.
func (m *MemoryPersistence) SetRaw(session, profile []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.profile = profile
}

// DecodeState parses a session document.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.SessionID == "" {
		return nil, fmt.Errorf("decode session: missing sessionId")
	}
	s.normalize()
	return &s, nil
}

// DecodeProfile parses a profile document.
func DecodeProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.normalize()
	return &p, nil
}
