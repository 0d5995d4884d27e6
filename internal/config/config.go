// Package config loads process-level settings for commands and examples
// from the environment, with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration. Library-level knobs live in the
// root authcore.Config; this covers DSNs, key material and TTLs.
type Config struct {
	AppEnv string `mapstructure:"APP_ENV"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	JWTIssuer   string        `mapstructure:"JWT_ISSUER"`
	JWTAudience string        `mapstructure:"JWT_AUDIENCE"`
	AccessTTL   time.Duration `mapstructure:"JWT_ACCESS_TTL"`

	RefreshTTL    time.Duration `mapstructure:"REFRESH_TTL"`
	ResetTokenTTL time.Duration `mapstructure:"RESET_TOKEN_TTL"`

	LockoutThreshold int           `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutWindow    time.Duration `mapstructure:"LOCKOUT_WINDOW"`
	LockoutCooldown  time.Duration `mapstructure:"LOCKOUT_COOLDOWN"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present; real environment variables
// win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	// .env is optional; the environment alone is a complete source.
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("JWT_ISSUER", "canvasforge")
	v.SetDefault("JWT_ACCESS_TTL", "10m")
	v.SetDefault("REFRESH_TTL", "720h")
	v.SetDefault("RESET_TOKEN_TTL", "30m")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_WINDOW", "15m")
	v.SetDefault("LOCKOUT_COOLDOWN", "15m")

	// Viper only unmarshals keys it has seen; bind the ones without
	// defaults explicitly.
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "JWT_AUDIENCE"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	return nil
}
