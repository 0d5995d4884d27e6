package authcore

import (
	"context"
	"time"

	"github.com/canvasforge/authcore/reset"
	"github.com/canvasforge/authcore/token"
)

// User is the account record the engine authenticates against. PasswordHash
// is a PHC-encoded argon2id string and never leaves the engine room.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	TenantID     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary returns the user without secret material, for returning across
// the boundary.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		TenantID: u.TenantID,
	}
}

// UserSummary is the boundary-safe view of a User.
type UserSummary struct {
	ID       string
	Email    string
	Name     string
	Role     string
	TenantID string
}

// UserStore persists accounts. GetByEmail returns (nil, nil) for unknown
// emails; Create maps a duplicate email to ErrEmailConflict.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdatePasswordHash(ctx context.Context, userID, newPasswordHash string) error
}

// TokenPair is the access/refresh pair returned by login and refresh.
type TokenPair = token.Pair

// Claims is the verified access-token payload.
type Claims = token.Claims

// Notifier delivers password reset tokens out of band.
type Notifier = reset.Notifier

// AuthResult is the outcome of a successful login or registration.
type AuthResult struct {
	User      UserSummary
	SessionID string
	Tokens    TokenPair
}

// ResetTokenStatus is the read-only answer to a reset-token validity check.
type ResetTokenStatus struct {
	Valid     bool
	ExpiresAt time.Time
}
