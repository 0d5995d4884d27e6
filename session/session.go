// Package session manages the refresh-session lifecycle: creation, rotation
// with reuse detection, and revocation. Sessions are never deleted; revoked
// rows stay behind as the audit trail, linked forward through
// ReplacedBySessionID.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session matches the presented refresh
	// token hash, or the matched session is revoked outside a rotation chain.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the matched session's ExpiresAt has passed.
	ErrExpired = errors.New("session expired")
	// ErrReuseDetected is returned when a refresh token that was already
	// rotated away is presented again. By the time callers see this, every
	// active session of the affected user has been revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrUnavailable wraps storage failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is one refresh-token lifetime. RefreshTokenHash is the SHA-256 of
// the opaque secret; the raw value is never stored.
type Session struct {
	ID                  string
	UserID              string
	TenantID            string
	Role                string
	RefreshTokenHash    string
	DeviceInfo          string
	IssuedAt            time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	ReplacedBySessionID string
}

// Revoked reports whether the session has been marked revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Repository persists sessions. Implementations must make Rotate a single
// atomic unit: concurrent rotations of the same token hash see exactly one
// winner, and the reuse branch revokes the user's active sessions before
// returning.
type Repository interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s *Session) error

	// Rotate looks up the session by tokenHash and, in one atomic unit,
	// marks it revoked, links it to next, and inserts next. The next
	// session is completed from the old row (UserID, TenantID, Role,
	// DeviceInfo); next.ID, next.RefreshTokenHash, next.IssuedAt and
	// next.ExpiresAt must be set by the caller. Outcomes:
	//   - no matching row: ErrNotFound
	//   - row revoked with a successor: revoke all the user's active
	//     sessions, then ErrReuseDetected
	//   - row revoked without a successor: ErrNotFound
	//   - row expired: ErrExpired
	//   - otherwise: the inserted next session
	Rotate(ctx context.Context, tokenHash string, next *Session) (*Session, error)

	// Revoke marks one session revoked. Revoking an already-revoked or
	// unknown session is a no-op.
	Revoke(ctx context.Context, sessionID string, now time.Time) error

	// RevokeByTokenHash revokes the session holding tokenHash, if any.
	RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllForUser revokes every active session of userID and returns
	// how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
}
