package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*Identity
	byEmail    map[string]string
	byUsername map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Identity),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(id)
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(m.byEmail[Normalize(email)])
}

func (m *MemoryStore) GetByUsername(_ context.Context, username string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(m.byUsername[Normalize(username)])
}

func (m *MemoryStore) Create(_ context.Context, ident *Identity) error {
	if err := prepare(ident, time.Now()); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[ident.Email]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := m.byUsername[ident.Username]; ok {
		return ErrDuplicateUsername
	}

	stored := *ident
	m.byID[stored.ID] = &stored
	m.byEmail[stored.Email] = stored.ID
	m.byUsername[stored.Username] = stored.ID
	return nil
}

func (m *MemoryStore) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	ident.PasswordHash = passwordHash
	ident.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) lookup(id string) (*Identity, error) {
	ident, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *ident
	return &out, nil
}
