package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is returned when request input fails structural checks
	// (malformed email, password policy violation).
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned when email or password is wrong.
	// Boundaries must present it with the same message as an unknown email.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is the match target for lockout failures; concrete
	// errors are AccountLockedError values carrying the unlock time.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailConflict is returned when registering an email that already
	// has an account.
	ErrEmailConflict = errors.New("email already registered")
	// ErrNotFound is returned when a referenced user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTokenInvalid covers malformed, forged, unknown and revoked tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when a structurally valid token is past
	// its lifetime. Distinct from ErrTokenInvalid so clients know a silent
	// refresh may still succeed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReuseDetected is returned when an already-rotated refresh
	// token is replayed. All of the user's sessions are revoked first.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrResetTokenInvalid is returned for unknown password reset tokens.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrResetTokenExpired is returned for expired password reset tokens.
	ErrResetTokenExpired = errors.New("reset token expired")
	// ErrResetTokenUsed is returned when a reset token was already consumed.
	ErrResetTokenUsed = errors.New("reset token already used")
	// ErrUnauthenticated is returned when an operation requires an
	// authenticated caller and none was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnavailable wraps infrastructure failures (storage, Redis).
	ErrUnavailable = errors.New("backend unavailable")
)

// AccountLockedError reports an active lockout and when it lifts.
// errors.Is matches it against ErrAccountLocked.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
