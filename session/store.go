package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/canvasforge/authcore/token"
)

// Store composes a Repository with the token issuer: it hashes refresh
// secrets on the way in and mints the successor pair during rotation. All
// methods are safe for concurrent use.
type Store struct {
	repo       Repository
	issuer     *token.Issuer
	refreshTTL time.Duration
	now        func() time.Time
}

// NewStore wires a Store. nowFn may be nil, in which case time.Now is used.
func NewStore(repo Repository, issuer *token.Issuer, refreshTTL time.Duration, nowFn func() time.Time) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("session: repository is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("session: token issuer is required")
	}
	if refreshTTL <= 0 {
		return nil, fmt.Errorf("session: refresh TTL must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{repo: repo, issuer: issuer, refreshTTL: refreshTTL, now: nowFn}, nil
}

// CreateParams describes a new session. RefreshToken is the raw opaque
// secret already handed to the client; only its hash is persisted.
type CreateParams struct {
	UserID       string
	TenantID     string
	Role         string
	DeviceInfo   string
	RefreshToken string
}

// Create persists a fresh session for a just-authenticated user.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Session, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("session: user ID is required")
	}
	if p.RefreshToken == "" {
		return nil, fmt.Errorf("session: refresh token is required")
	}

	now := s.now()
	sess := &Session{
		ID:               uuid.NewString(),
		UserID:           p.UserID,
		TenantID:         p.TenantID,
		Role:             p.Role,
		RefreshTokenHash: token.HashSecret(p.RefreshToken),
		DeviceInfo:       p.DeviceInfo,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.refreshTTL),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ValidateAndRotate redeems a raw refresh token for a new token pair. The
// successor secret is minted before the atomic swap so the repository
// transaction does no CPU work; the presented token is valid for at most one
// successful rotation.
func (s *Store) ValidateAndRotate(ctx context.Context, rawRefreshToken string) (token.Pair, *Session, error) {
	if rawRefreshToken == "" {
		return token.Pair{}, nil, ErrNotFound
	}

	nextSecret, err := token.NewSecret()
	if err != nil {
		return token.Pair{}, nil, err
	}

	now := s.now()
	next := &Session{
		ID:               uuid.NewString(),
		RefreshTokenHash: token.HashSecret(nextSecret),
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.refreshTTL),
	}

	rotated, err := s.repo.Rotate(ctx, token.HashSecret(rawRefreshToken), next)
	if err != nil {
		return token.Pair{}, nil, err
	}

	access, err := s.issuer.IssueAccess(rotated.UserID, rotated.Role, rotated.TenantID)
	if err != nil {
		return token.Pair{}, nil, err
	}

	return token.Pair{AccessToken: access, RefreshToken: nextSecret}, rotated, nil
}

// Revoke marks a single session revoked. Idempotent.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	return s.repo.Revoke(ctx, sessionID, s.now())
}

// RevokeByToken revokes the session holding the raw refresh token, if any.
func (s *Store) RevokeByToken(ctx context.Context, rawRefreshToken string) error {
	if rawRefreshToken == "" {
		return nil
	}
	return s.repo.RevokeByTokenHash(ctx, token.HashSecret(rawRefreshToken), s.now())
}

// RevokeAll revokes every active session of a user and returns the count.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	return s.repo.RevokeAllForUser(ctx, userID, s.now())
}
