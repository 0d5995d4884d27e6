package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a mutex-guarded in-memory Repository for tests and
// embedded use. The mutex makes Rotate a single atomic unit, so it upholds
// the same first-writer-wins guarantee as the SQL implementation.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[string]*Session
	byHash map[string]string // refresh token hash -> session ID
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*Session),
		byHash: make(map[string]string),
	}
}

func (m *MemoryRepository) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[cp.ID] = &cp
	m.byHash[cp.RefreshTokenHash] = cp.ID
	return nil
}

func (m *MemoryRepository) Rotate(_ context.Context, tokenHash string, next *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	old := m.byID[id]

	if old.Revoked() {
		if old.ReplacedBySessionID != "" {
			m.revokeAllLocked(old.UserID, next.IssuedAt)
			return nil, ErrReuseDetected
		}
		return nil, ErrNotFound
	}
	if !next.IssuedAt.Before(old.ExpiresAt) {
		return nil, ErrExpired
	}

	now := next.IssuedAt
	old.RevokedAt = &now
	old.ReplacedBySessionID = next.ID

	cp := *next
	cp.UserID = old.UserID
	cp.TenantID = old.TenantID
	cp.Role = old.Role
	cp.DeviceInfo = old.DeviceInfo
	m.byID[cp.ID] = &cp
	m.byHash[cp.RefreshTokenHash] = cp.ID

	out := cp
	return &out, nil
}

func (m *MemoryRepository) Revoke(_ context.Context, sessionID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok || s.Revoked() {
		return nil
	}
	t := now
	s.RevokedAt = &t
	return nil
}

func (m *MemoryRepository) RevokeByTokenHash(_ context.Context, tokenHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[tokenHash]
	if !ok {
		return nil
	}
	s := m.byID[id]
	if s.Revoked() {
		return nil
	}
	t := now
	s.RevokedAt = &t
	return nil
}

func (m *MemoryRepository) RevokeAllForUser(_ context.Context, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeAllLocked(userID, now), nil
}

// Get returns a copy of a session by ID, or nil when absent. Test helper.
func (m *MemoryRepository) Get(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *MemoryRepository) revokeAllLocked(userID string, now time.Time) int {
	count := 0
	for _, s := range m.byID {
		if s.UserID == userID && !s.Revoked() {
			t := now
			s.RevokedAt = &t
			count++
		}
	}
	return count
}
