package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/canvasforge/authcore/reset"
)

// Resets implements reset.Repository over auth_password_resets. Consume
// marks the token used and swaps the owner's password hash in one
// transaction, so partially-applied resets cannot exist.
type Resets struct {
	db *sql.DB
}

// NewResets returns the Postgres reset-token repository.
func NewResets(db *sql.DB) *Resets {
	return &Resets{db: db}
}

func (r *Resets) Create(ctx context.Context, t *reset.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_password_resets (
			token_hash, user_id, issued_at, expires_at
		) VALUES ($1, $2, $3, $4)`,
		t.TokenHash, t.UserID, t.IssuedAt, t.ExpiresAt,
	)
	if err != nil {
		return errors.Join(reset.ErrUnavailable, err)
	}
	return nil
}

func (r *Resets) Get(ctx context.Context, tokenHash string) (*reset.Token, error) {
	var (
		t      reset.Token
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, issued_at, expires_at, used_at
		FROM auth_password_resets
		WHERE token_hash = $1`,
		tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reset.ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(reset.ErrUnavailable, err)
	}
	if usedAt.Valid {
		ts := usedAt.Time
		t.UsedAt = &ts
	}
	return &t, nil
}

func (r *Resets) Consume(ctx context.Context, tokenHash string, newPasswordHash string, now time.Time) (*reset.Token, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Join(reset.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var (
		t      reset.Token
		usedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT token_hash, user_id, issued_at, expires_at, used_at
		FROM auth_password_resets
		WHERE token_hash = $1
		FOR UPDATE`,
		tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reset.ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(reset.ErrUnavailable, err)
	}

	if usedAt.Valid {
		return nil, reset.ErrUsed
	}
	if !now.Before(t.ExpiresAt) {
		return nil, reset.ErrExpired
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_password_resets
		SET used_at = $2
		WHERE token_hash = $1`,
		tokenHash, now,
	); err != nil {
		return nil, errors.Join(reset.ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1`,
		t.UserID, newPasswordHash, now,
	); err != nil {
		return nil, errors.Join(reset.ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Join(reset.ErrUnavailable, err)
	}

	ts := now
	t.UsedAt = &ts
	return &t, nil
}
