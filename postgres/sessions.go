package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/canvasforge/authcore/session"
)

// Sessions implements session.Repository over auth_sessions. Rows are never
// deleted; revocation and rotation only flip revoked_at and
// replaced_by_session_id.
type Sessions struct {
	db *sql.DB
}

// NewSessions returns the Postgres session repository.
func NewSessions(db *sql.DB) *Sessions {
	return &Sessions{db: db}
}

func (r *Sessions) Create(ctx context.Context, s *session.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (
			id, user_id, tenant_id, role, refresh_token_hash,
			device_info, issued_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TenantID, s.Role, s.RefreshTokenHash,
		s.DeviceInfo, s.IssuedAt, s.ExpiresAt,
	)
	if err != nil {
		return errors.Join(session.ErrUnavailable, err)
	}
	return nil
}

// Rotate runs the whole outcome ladder inside one transaction, locking the
// presented row so concurrent rotations of the same token serialize and
// exactly one wins.
func (r *Sessions) Rotate(ctx context.Context, tokenHash string, next *session.Session) (*session.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Join(session.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var (
		old       session.Session
		revokedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, role, device_info,
		       issued_at, expires_at, revoked_at, replaced_by_session_id
		FROM auth_sessions
		WHERE refresh_token_hash = $1
		FOR UPDATE`,
		tokenHash,
	).Scan(
		&old.ID, &old.UserID, &old.TenantID, &old.Role, &old.DeviceInfo,
		&old.IssuedAt, &old.ExpiresAt, &revokedAt, &old.ReplacedBySessionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(session.ErrUnavailable, err)
	}

	now := next.IssuedAt
	if revokedAt.Valid {
		if old.ReplacedBySessionID != "" {
			// Replay of a rotated-away token. Kill every active session
			// of the user before reporting, in the same transaction.
			if _, err := revokeAllForUserTx(ctx, tx, old.UserID, now); err != nil {
				return nil, errors.Join(session.ErrUnavailable, err)
			}
			if err := tx.Commit(); err != nil {
				return nil, errors.Join(session.ErrUnavailable, err)
			}
			return nil, session.ErrReuseDetected
		}
		return nil, session.ErrNotFound
	}
	if !now.Before(old.ExpiresAt) {
		return nil, session.ErrExpired
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2, replaced_by_session_id = $3
		WHERE id = $1`,
		old.ID, now, next.ID,
	); err != nil {
		return nil, errors.Join(session.ErrUnavailable, err)
	}

	created := *next
	created.UserID = old.UserID
	created.TenantID = old.TenantID
	created.Role = old.Role
	created.DeviceInfo = old.DeviceInfo
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auth_sessions (
			id, user_id, tenant_id, role, refresh_token_hash,
			device_info, issued_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		created.ID, created.UserID, created.TenantID, created.Role,
		created.RefreshTokenHash, created.DeviceInfo,
		created.IssuedAt, created.ExpiresAt,
	); err != nil {
		return nil, errors.Join(session.ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Join(session.ErrUnavailable, err)
	}
	return &created, nil
}

func (r *Sessions) Revoke(ctx context.Context, sessionID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`,
		sessionID, now,
	)
	if err != nil {
		return errors.Join(session.ErrUnavailable, err)
	}
	return nil
}

func (r *Sessions) RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL`,
		tokenHash, now,
	)
	if err != nil {
		return errors.Join(session.ErrUnavailable, err)
	}
	return nil
}

func (r *Sessions) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now,
	)
	if err != nil {
		return 0, errors.Join(session.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Join(session.ErrUnavailable, err)
	}
	return int(affected), nil
}

func revokeAllForUserTx(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (int, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now,
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
