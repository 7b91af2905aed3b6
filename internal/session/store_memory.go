package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is the default store when no database is configured. Records
// are deep-copied on the way in and out so callers can never mutate a stored
// session without going through Save.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return clone(s)
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	copied, err := clone(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[s.ID] = copied
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	now := time.Now()
	var removed int64

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()
	return removed, nil
}

func clone(s *Session) (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var copied Session
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, err
	}
	return &copied, nil
}
