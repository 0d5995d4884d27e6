package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/canvasforge/authcore"
)

const uniqueViolation = "23505"

// Users implements authcore.UserStore over auth_users.
type Users struct {
	db *sql.DB
}

// NewUsers returns the Postgres user store.
func NewUsers(db *sql.DB) *Users {
	return &Users{db: db}
}

// GetByEmail returns the user for an email, or nil when none exists.
func (r *Users) GetByEmail(ctx context.Context, email string) (*authcore.User, error) {
	var u authcore.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, tenant_id, password_hash,
		       created_at, updated_at
		FROM auth_users
		WHERE email = $1`,
		email,
	).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.TenantID, &u.PasswordHash,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(authcore.ErrUnavailable, err)
	}
	return &u, nil
}

// Create inserts a user. A duplicate email surfaces as
// authcore.ErrEmailConflict via the unique constraint, so the check is
// race-free.
func (r *Users) Create(ctx context.Context, u *authcore.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_users (
			id, email, name, role, tenant_id, password_hash,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.Role, u.TenantID, u.PasswordHash,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authcore.ErrEmailConflict
		}
		return errors.Join(authcore.ErrUnavailable, err)
	}
	return nil
}

// UpdatePasswordHash replaces a user's password hash.
func (r *Users) UpdatePasswordHash(ctx context.Context, userID, newPasswordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1`,
		userID, newPasswordHash,
	)
	if err != nil {
		return errors.Join(authcore.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Join(authcore.ErrUnavailable, err)
	}
	if affected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}
