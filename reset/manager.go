// Package reset implements single-use password reset tokens. Request never
// reveals whether an email is registered; confirm consumes the token and
// swaps the password hash in one atomic unit.
package reset

import (
	"context"
	"errors"
	"time"

	"github.com/canvasforge/authcore/token"
)

var (
	// ErrNotFound is returned for tokens with no stored counterpart.
	ErrNotFound = errors.New("reset token not found")
	// ErrExpired is returned when the token exists but its window passed.
	ErrExpired = errors.New("reset token expired")
	// ErrUsed is returned when the token was already consumed.
	ErrUsed = errors.New("reset token already used")
	// ErrUnavailable wraps storage failures.
	ErrUnavailable = errors.New("reset store unavailable")
)

// Token is a stored reset grant. Only the SHA-256 hash of the bearer secret
// is persisted; UsedAt marks consumption and is never cleared.
type Token struct {
	TokenHash string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Used reports whether the token has been consumed.
func (t *Token) Used() bool {
	return t.UsedAt != nil
}

// Repository persists reset tokens. Consume must be a single atomic unit:
// marking the token used and writing the new password hash either both
// happen or neither does, and concurrent confirms of the same token see
// exactly one winner.
type Repository interface {
	Create(ctx context.Context, t *Token) error

	// Get returns the token for a hash, ErrNotFound when absent. Read-only.
	Get(ctx context.Context, tokenHash string) (*Token, error)

	// Consume marks the token used and updates the owning user's password
	// hash atomically. Outcomes: ErrNotFound, ErrUsed (already consumed),
	// ErrExpired, or the consumed token.
	Consume(ctx context.Context, tokenHash string, newPasswordHash string, now time.Time) (*Token, error)
}

// UserDirectory resolves emails to user IDs. LookupByEmail returns an empty
// ID (and nil error) for unknown emails so callers can stay silent about
// which addresses exist.
type UserDirectory interface {
	LookupByEmail(ctx context.Context, email string) (string, error)
}

// Notifier delivers the raw reset token out of band. Implementations own
// the message format; the manager only guarantees the raw token is never
// persisted.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, rawToken string, expiresAt time.Time) error
}

// Manager drives the reset flow. Safe for concurrent use.
type Manager struct {
	repo     Repository
	users    UserDirectory
	notifier Notifier
	tokenTTL time.Duration
	now      func() time.Time
	warn     func(op string, err error)
}

// NewManager wires a Manager. warn receives swallowed internal errors
// (notifier failures, storage errors on the silent path) and may be nil.
func NewManager(repo Repository, users UserDirectory, notifier Notifier, tokenTTL time.Duration, nowFn func() time.Time, warn func(op string, err error)) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("reset: repository is required")
	}
	if users == nil {
		return nil, errors.New("reset: user directory is required")
	}
	if notifier == nil {
		return nil, errors.New("reset: notifier is required")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("reset: token TTL must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if warn == nil {
		warn = func(string, error) {}
	}
	return &Manager{
		repo:     repo,
		users:    users,
		notifier: notifier,
		tokenTTL: tokenTTL,
		now:      nowFn,
		warn:     warn,
	}, nil
}

// Request issues a reset token for email and hands it to the notifier. It
// returns nil regardless of whether the email is registered; the token mint
// runs on both paths so response timing does not leak account existence.
func (m *Manager) Request(ctx context.Context, email string) error {
	raw, err := token.NewSecret()
	if err != nil {
		return err
	}
	hash := token.HashSecret(raw)

	userID, err := m.users.LookupByEmail(ctx, email)
	if err != nil {
		m.warn("reset.request.lookup", err)
		return nil
	}
	if userID == "" {
		return nil
	}

	now := m.now()
	t := &Token{
		TokenHash: hash,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.tokenTTL),
	}
	if err := m.repo.Create(ctx, t); err != nil {
		m.warn("reset.request.store", err)
		return nil
	}
	if err := m.notifier.SendPasswordReset(ctx, email, raw, t.ExpiresAt); err != nil {
		m.warn("reset.request.notify", err)
	}
	return nil
}

// Validate reports whether a raw token is currently redeemable, without
// consuming it. The second return is the token's expiry when valid.
func (m *Manager) Validate(ctx context.Context, rawToken string) (bool, time.Time, error) {
	if rawToken == "" {
		return false, time.Time{}, nil
	}
	t, err := m.repo.Get(ctx, token.HashSecret(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	if t.Used() || !m.now().Before(t.ExpiresAt) {
		return false, time.Time{}, nil
	}
	return true, t.ExpiresAt, nil
}

// Confirm consumes a raw token and installs newPasswordHash for its owner.
// It returns the owning user's ID on success; the token is dead afterwards
// even if later steps at the caller fail.
func (m *Manager) Confirm(ctx context.Context, rawToken, newPasswordHash string) (string, error) {
	if rawToken == "" {
		return "", ErrNotFound
	}
	t, err := m.repo.Consume(ctx, token.HashSecret(rawToken), newPasswordHash, m.now())
	if err != nil {
		return "", err
	}
	return t.UserID, nil
}
