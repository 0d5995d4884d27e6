package authcore

import (
	"errors"
	"time"

	"github.com/canvasforge/authcore/lockout"
	"github.com/canvasforge/authcore/password"
	"github.com/canvasforge/authcore/token"
)

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking callers when the buffer
	// is full. Dropped events are counted and exported.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config assembles the engine. Zero values are filled from DefaultConfig
// where safe; key material and TTLs must be provided by the caller.
type Config struct {
	Token      token.Config
	RefreshTTL time.Duration
	Password   password.Config
	Lockout    lockout.Config
	// ResetTokenTTL bounds password reset token lifetime.
	ResetTokenTTL time.Duration
	Audit         AuditConfig
	Metrics       MetricsConfig

	// DefaultRole is assigned to newly registered users.
	DefaultRole string
	// MinPasswordLength is the policy floor; uppercase, lowercase and a
	// digit are always required on top of it.
	MinPasswordLength int
	// RevokeSessionsOnPasswordReset revokes all of a user's sessions when
	// a password reset confirm succeeds.
	RevokeSessionsOnPasswordReset bool

	// Now overrides the engine clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns production-leaning defaults. Token key material is
// deliberately absent and must be set before New.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			SigningMethod: token.MethodHS256,
			AccessTTL:     10 * time.Minute,
			Leeway:        30 * time.Second,
		},
		RefreshTTL:    30 * 24 * time.Hour,
		Password:      password.DefaultConfig(),
		Lockout:       lockout.DefaultConfig(),
		ResetTokenTTL: 30 * time.Minute,
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics:                       MetricsConfig{Enabled: true},
		DefaultRole:                   "member",
		MinPasswordLength:             8,
		RevokeSessionsOnPasswordReset: true,
	}
}

func (c *Config) validate() error {
	if c.RefreshTTL <= 0 {
		return errors.New("config: refresh TTL must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		return errors.New("config: reset token TTL must be positive")
	}
	if c.MinPasswordLength < 8 {
		return errors.New("config: minimum password length must be >= 8")
	}
	if c.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	return nil
}
