// Package authcore is the authentication and session-lifecycle core of the
// CanvasForge studio backend: credential verification, signed access-token
// issuance, refresh-token rotation with reuse detection, brute-force
// lockout and single-use password reset tokens.
//
// The package exposes a single [Engine] facade constructed over pluggable
// collaborators ([UserStore], session and reset repositories, a Redis
// client for lockout, a [Notifier] for reset delivery). Postgres-backed
// repositories live in the postgres subpackage; in-memory equivalents exist
// for tests and embedded use.
//
// Failures are a closed set of sentinel error kinds (ErrInvalidCredentials,
// ErrAccountLocked, ErrTokenInvalid, ErrTokenExpired, ErrTokenReuseDetected,
// the reset-token kinds, ErrUnavailable) matched with errors.Is. Boundary
// layers switch on kind and collapse the enumeration-sensitive ones into a
// uniform message; see examples/http-minimal.
package authcore
