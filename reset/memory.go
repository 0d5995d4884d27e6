package reset

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a mutex-guarded in-memory Repository for tests and
// embedded use. setPassword is invoked inside Consume's critical section so
// token consumption and the password write stay one atomic unit.
type MemoryRepository struct {
	mu          sync.Mutex
	byHash      map[string]*Token
	setPassword func(ctx context.Context, userID, newPasswordHash string) error
}

// NewMemoryRepository returns an in-memory reset repository. setPassword
// applies the new password hash during Consume and may be nil when the
// caller only exercises token bookkeeping.
func NewMemoryRepository(setPassword func(ctx context.Context, userID, newPasswordHash string) error) *MemoryRepository {
	if setPassword == nil {
		setPassword = func(context.Context, string, string) error { return nil }
	}
	return &MemoryRepository{
		byHash:      make(map[string]*Token),
		setPassword: setPassword,
	}
}

func (m *MemoryRepository) Create(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.byHash[cp.TokenHash] = &cp
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, tokenHash string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) Consume(ctx context.Context, tokenHash string, newPasswordHash string, now time.Time) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.byHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Used() {
		return nil, ErrUsed
	}
	if !now.Before(t.ExpiresAt) {
		return nil, ErrExpired
	}

	if err := m.setPassword(ctx, t.UserID, newPasswordHash); err != nil {
		return nil, err
	}
	usedAt := now
	t.UsedAt = &usedAt

	cp := *t
	return &cp, nil
}
