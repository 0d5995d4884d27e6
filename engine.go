package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/canvasforge/authcore/lockout"
	"github.com/canvasforge/authcore/password"
	"github.com/canvasforge/authcore/reset"
	"github.com/canvasforge/authcore/session"
	"github.com/canvasforge/authcore/token"
)

// Audit event types emitted by the engine.
const (
	EventRegister             = "register"
	EventLogin                = "login"
	EventRefresh              = "refresh"
	EventLogout               = "logout"
	EventLogoutAll            = "logout_all"
	EventPasswordResetRequest = "password_reset_request"
	EventPasswordResetConfirm = "password_reset_confirm"
)

// Deps are the external collaborators the engine is constructed over.
type Deps struct {
	// Users persists accounts; required.
	Users UserStore
	// Sessions persists refresh sessions; required.
	Sessions session.Repository
	// Resets persists password reset tokens; required.
	Resets reset.Repository
	// Redis backs the lockout tracker; required.
	Redis redis.UniversalClient
	// Notifier delivers reset tokens; required.
	Notifier Notifier
	// AuditSink receives audit events; nil means NoOpSink.
	AuditSink AuditSink
}

// Engine is the authentication core: credential verification, token
// issuance, refresh rotation, lockout and password reset, behind one
// facade. Construct with New; all methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	users    UserStore
	verifier *verifier
	hasher   *password.Argon2
	issuer   *token.Issuer
	sessions *session.Store
	lockouts *lockout.Tracker
	resets   *reset.Manager
	metrics  *Metrics
	audit    *auditDispatcher
	now      func() time.Time
}

// New validates cfg, wires the subsystems and returns a ready Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Users == nil {
		return nil, errors.New("authcore: user store is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("authcore: session repository is required")
	}
	if deps.Resets == nil {
		return nil, errors.New("authcore: reset repository is required")
	}
	if deps.Redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("authcore: notifier is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	tokenCfg := cfg.Token
	if tokenCfg.Now == nil {
		tokenCfg.Now = now
	}
	issuer, err := token.NewIssuer(tokenCfg)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}

	v, err := newVerifier(deps.Users, hasher)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(deps.Sessions, issuer, cfg.RefreshTTL, now)
	if err != nil {
		return nil, err
	}

	lockouts, err := lockout.NewTracker(deps.Redis, cfg.Lockout, now)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		users:    deps.Users,
		verifier: v,
		hasher:   hasher,
		issuer:   issuer,
		sessions: sessions,
		lockouts: lockouts,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, deps.AuditSink),
		now:      now,
	}

	resets, err := reset.NewManager(
		deps.Resets,
		&userDirectory{users: deps.Users},
		deps.Notifier,
		cfg.ResetTokenTTL,
		now,
		func(op string, warnErr error) {
			e.emit(context.Background(), AuditEvent{
				EventType: EventPasswordResetRequest,
				Success:   false,
				Error:     op,
				Metadata:  map[string]string{"detail": warnErr.Error()},
			})
		},
	)
	if err != nil {
		return nil, err
	}
	e.resets = resets

	return e, nil
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	e.audit.Close()
}

// RegisterParams describes a registration request.
type RegisterParams struct {
	Email      string
	Password   string
	Name       string
	TenantID   string
	DeviceInfo string
}

// Register creates an account and logs it straight in, returning a token
// pair alongside the user summary. Duplicate emails surface as
// ErrEmailConflict, detected by the store's unique constraint so two
// concurrent registrations cannot both win.
func (e *Engine) Register(ctx context.Context, p RegisterParams) (*AuthResult, error) {
	email := normalizeEmail(p.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(p.Password, e.cfg.MinPasswordLength); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(p.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := e.now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         p.Name,
		Role:         e.cfg.DefaultRole,
		TenantID:     p.TenantID,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailConflict) {
			e.metrics.Inc(MetricRegisterDuplicate)
			e.emit(ctx, AuditEvent{EventType: EventRegister, Success: false, Error: "email_conflict"})
			return nil, ErrEmailConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result, err := e.startSession(ctx, u, p.DeviceInfo)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricRegisterSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventRegister,
		UserID:    u.ID,
		TenantID:  u.TenantID,
		SessionID: result.SessionID,
		Success:   true,
	})
	return result, nil
}

// LoginParams describes a login request.
type LoginParams struct {
	Email      string
	Password   string
	DeviceInfo string
}

// Login authenticates a credential pair and opens a session. The lockout
// check runs before the password comparison, so locked identifiers never
// reach the hasher; a verification failure records one lockout strike.
func (e *Engine) Login(ctx context.Context, p LoginParams) (*AuthResult, error) {
	email := normalizeEmail(p.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if p.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	if err := e.lockouts.Check(ctx, email); err != nil {
		var locked *lockout.LockedError
		if errors.As(err, &locked) {
			e.metrics.Inc(MetricLoginLocked)
			e.emit(ctx, AuditEvent{EventType: EventLogin, Success: false, Error: "account_locked"})
			return nil, &AccountLockedError{LockedUntil: locked.Until}
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	u, err := e.verifier.verify(ctx, email, p.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if _, lockErr := e.lockouts.RecordFailure(ctx, email); lockErr != nil {
				// Losing a strike is better than failing the response.
				e.emit(ctx, AuditEvent{EventType: EventLogin, Success: false, Error: "lockout_unavailable"})
			}
			e.metrics.Inc(MetricLoginFailure)
			e.emit(ctx, AuditEvent{EventType: EventLogin, Success: false, Error: "invalid_credentials"})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := e.lockouts.RecordSuccess(ctx, email); err != nil {
		e.emit(ctx, AuditEvent{EventType: EventLogin, UserID: u.ID, Success: true, Error: "lockout_unavailable"})
	}

	e.upgradePasswordHash(ctx, u, p.Password)

	result, err := e.startSession(ctx, u, p.DeviceInfo)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventLogin,
		UserID:    u.ID,
		TenantID:  u.TenantID,
		SessionID: result.SessionID,
		Success:   true,
	})
	return result, nil
}

// Refresh redeems a refresh token for a new pair. The presented token dies
// either way: on success it is rotated away, on replay every session of the
// user is revoked before ErrTokenReuseDetected comes back.
func (e *Engine) Refresh(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	pair, sess, err := e.sessions.ValidateAndRotate(ctx, rawRefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrReuseDetected):
			e.metrics.Inc(MetricRefreshReuseDetected)
			e.emit(ctx, AuditEvent{EventType: EventRefresh, Success: false, Error: "reuse_detected"})
			return TokenPair{}, ErrTokenReuseDetected
		case errors.Is(err, session.ErrExpired):
			e.metrics.Inc(MetricRefreshFailure)
			e.emit(ctx, AuditEvent{EventType: EventRefresh, Success: false, Error: "token_expired"})
			return TokenPair{}, ErrTokenExpired
		case errors.Is(err, session.ErrNotFound):
			e.metrics.Inc(MetricRefreshFailure)
			e.emit(ctx, AuditEvent{EventType: EventRefresh, Success: false, Error: "token_invalid"})
			return TokenPair{}, ErrTokenInvalid
		default:
			return TokenPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emit(ctx, AuditEvent{
		EventType: EventRefresh,
		UserID:    sess.UserID,
		TenantID:  sess.TenantID,
		SessionID: sess.ID,
		Success:   true,
	})
	return pair, nil
}

// Logout revokes the session behind a refresh token. Best effort: unknown
// or already-dead tokens and storage hiccups all acknowledge, since the
// client is discarding its tokens either way.
func (e *Engine) Logout(ctx context.Context, rawRefreshToken string) error {
	if err := e.sessions.RevokeByToken(ctx, rawRefreshToken); err != nil {
		e.emit(ctx, AuditEvent{EventType: EventLogout, Success: false, Error: "unavailable"})
		return nil
	}
	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionRevoked)
	e.emit(ctx, AuditEvent{EventType: EventLogout, Success: true})
	return nil
}

// LogoutAll revokes every active session of an authenticated user and
// returns how many there were.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUnauthenticated
	}
	count, err := e.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.metrics.Inc(MetricLogoutAll)
	e.metrics.Add(MetricSessionRevoked, uint64(count))
	e.emit(ctx, AuditEvent{
		EventType: EventLogoutAll,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"revoked": fmt.Sprintf("%d", count)},
	})
	return count, nil
}

// RequestPasswordReset issues a reset token for email and hands it to the
// notifier. It acknowledges identically whether or not the email has an
// account.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := e.resets.Request(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.metrics.Inc(MetricPasswordResetRequest)
	e.emit(ctx, AuditEvent{EventType: EventPasswordResetRequest, Success: true})
	return nil
}

// ValidateResetToken reports whether a reset token is currently redeemable
// without consuming it.
func (e *Engine) ValidateResetToken(ctx context.Context, rawToken string) (ResetTokenStatus, error) {
	valid, expiresAt, err := e.resets.Validate(ctx, rawToken)
	if err != nil {
		return ResetTokenStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ResetTokenStatus{Valid: valid, ExpiresAt: expiresAt}, nil
}

// ConfirmPasswordReset consumes a reset token and installs the new
// password. When RevokeSessionsOnPasswordReset is set, every session of the
// user is revoked afterwards.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword, e.cfg.MinPasswordLength); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	userID, err := e.resets.Confirm(ctx, rawToken, hash)
	if err != nil {
		e.metrics.Inc(MetricPasswordResetConfirmFailure)
		switch {
		case errors.Is(err, reset.ErrUsed):
			e.emit(ctx, AuditEvent{EventType: EventPasswordResetConfirm, Success: false, Error: "token_used"})
			return ErrResetTokenUsed
		case errors.Is(err, reset.ErrExpired):
			e.emit(ctx, AuditEvent{EventType: EventPasswordResetConfirm, Success: false, Error: "token_expired"})
			return ErrResetTokenExpired
		case errors.Is(err, reset.ErrNotFound):
			e.emit(ctx, AuditEvent{EventType: EventPasswordResetConfirm, Success: false, Error: "token_invalid"})
			return ErrResetTokenInvalid
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if e.cfg.RevokeSessionsOnPasswordReset {
		if _, err := e.sessions.RevokeAll(ctx, userID); err != nil {
			// The password already changed; treat the sweep as advisory.
			e.emit(ctx, AuditEvent{EventType: EventPasswordResetConfirm, UserID: userID, Success: true, Error: "revoke_all_unavailable"})
		}
	}

	e.metrics.Inc(MetricPasswordResetConfirmSuccess)
	e.emit(ctx, AuditEvent{EventType: EventPasswordResetConfirm, UserID: userID, Success: true})
	return nil
}

// VerifyAccessToken checks a signed access token and returns its claims.
// Failure kinds are ErrTokenExpired and ErrTokenInvalid, distinct so the
// boundary can offer a silent refresh only for the former.
func (e *Engine) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := e.issuer.VerifyAccess(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrAccessExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// startSession mints a refresh secret, persists the session and signs the
// access token for an authenticated user.
func (e *Engine) startSession(ctx context.Context, u *User, deviceInfo string) (*AuthResult, error) {
	refreshSecret, err := token.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := e.sessions.Create(ctx, session.CreateParams{
		UserID:       u.ID,
		TenantID:     u.TenantID,
		Role:         u.Role,
		DeviceInfo:   deviceInfo,
		RefreshToken: refreshSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.metrics.Inc(MetricSessionCreated)

	access, err := e.issuer.IssueAccess(u.ID, u.Role, u.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &AuthResult{
		User:      u.Summary(),
		SessionID: sess.ID,
		Tokens:    TokenPair{AccessToken: access, RefreshToken: refreshSecret},
	}, nil
}

// upgradePasswordHash transparently re-hashes a just-verified password when
// the stored hash was produced with weaker parameters than the current
// config. The login already succeeded; every failure here is advisory.
func (e *Engine) upgradePasswordHash(ctx context.Context, u *User, plaintext string) {
	upgrade, err := e.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, u.ID, newHash); err != nil {
		e.emit(ctx, AuditEvent{EventType: EventLogin, UserID: u.ID, Success: true, Error: "hash_upgrade_failed"})
		return
	}
	u.PasswordHash = newHash
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.Timestamp = e.now()
	e.audit.Emit(ctx, event)
}

// userDirectory adapts UserStore to the reset manager's lookup interface.
type userDirectory struct {
	users UserStore
}

func (d *userDirectory) LookupByEmail(ctx context.Context, email string) (string, error) {
	u, err := d.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.ID, nil
}
