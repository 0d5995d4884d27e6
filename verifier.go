package authcore

import (
	"context"
	"fmt"

	"github.com/canvasforge/authcore/password"
	"github.com/canvasforge/authcore/token"
)

// verifier checks email/password pairs. It has no side effects: counters
// and lockout bookkeeping are the engine's job.
type verifier struct {
	users  UserStore
	hasher *password.Argon2
	// dummyHash is compared against when the email is unknown, so the
	// known-email and unknown-email paths cost the same argon2 work and
	// response timing does not reveal which emails exist.
	dummyHash string
}

func newVerifier(users UserStore, hasher *password.Argon2) (*verifier, error) {
	secret, err := token.NewSecret()
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(secret)
	if err != nil {
		return nil, err
	}
	return &verifier{users: users, hasher: hasher, dummyHash: dummy}, nil
}

// verify returns the user when the credentials match, ErrInvalidCredentials
// otherwise. Unknown email and wrong password are indistinguishable to the
// caller.
func (v *verifier) verify(ctx context.Context, email, plaintext string) (*User, error) {
	u, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if u == nil {
		// Burn the same hashing cost as the real comparison.
		_, _ = v.hasher.Verify(plaintext, v.dummyHash)
		return nil, ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(plaintext, u.PasswordHash)
	if err != nil {
		// A corrupt stored hash must not read as a credential problem.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
