package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared symmetric secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrAccessExpired is returned when an access token's exp has passed.
	// Callers may attempt a silent refresh only on this kind.
	ErrAccessExpired = errors.New("access token expired")
	// ErrAccessInvalid is returned for malformed tokens, bad signatures,
	// or any structural claim failure.
	ErrAccessInvalid = errors.New("access token invalid")
)

// Claims is the access-token payload: sub, role, tenantId plus the
// registered iat/exp/iss/aud set.
type Claims struct {
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	jwt.RegisteredClaims
}

// Pair carries one signed access token and the opaque refresh token that
// was minted alongside it. The refresh token is never persisted raw.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Config for an Issuer. AccessTTL is required; Leeway is clamped the same
// way on both issue and verify paths.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	Leeway        time.Duration

	// Now overrides the clock; nil means time.Now. Tests use this to mint
	// already-expired tokens.
	Now func() time.Time
}

// Issuer mints signed access tokens and verifies them. It holds no mutable
// state and is safe for concurrent use.
type Issuer struct {
	config Config
	now    func() time.Time
}

// NewIssuer validates the config and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("token: access TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway out of range")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("token: hs256 requires a signing secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("token: ed25519 requires a public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("token: unsupported signing method")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{config: cfg, now: now}, nil
}

// IssueAccess signs a short-lived access token for the given identity.
// Role and tenant ride along as opaque claims; nothing here evaluates them.
func (i *Issuer) IssueAccess(userID, role, tenantID string) (string, error) {
	now := i.now()
	claims := Claims{
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.AccessTTL)),
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	signKey, err := i.signKey()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(i.method(), claims).SignedString(signKey)
}

// VerifyAccess parses and validates a signed access token. It fails with
// ErrAccessExpired when only the expiry check failed, ErrAccessInvalid for
// everything else, so callers can distinguish the refreshable case.
func (i *Issuer) VerifyAccess(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrAccessExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAccessInvalid, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrAccessInvalid
	}
	return claims, nil
}

func (i *Issuer) method() jwt.SigningMethod {
	if i.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (i *Issuer) signKey() (interface{}, error) {
	if i.config.SigningMethod == MethodHS256 {
		return i.config.PrivateKey, nil
	}
	return parseEdPrivateKey(i.config.PrivateKey)
}

func (i *Issuer) verifyKey() (interface{}, error) {
	if i.config.SigningMethod == MethodHS256 {
		return i.config.PrivateKey, nil
	}
	return parseEdPublicKey(i.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 public key type")
	}
	return edKey, nil
}

// secretLen is the entropy of opaque bearer secrets (refresh and reset
// tokens): 32 bytes, 256 bits.
const secretLen = 32

// NewSecret returns a fresh opaque bearer secret, base64url-encoded without
// padding. The raw value is handed to the client once; storage keeps only
// HashSecret of it.
func NewSecret() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret returns the hex SHA-256 of an opaque secret. A leaked storage
// snapshot yields hashes only, which cannot be replayed as credentials.
// Presented secrets are located by their hash through a unique index, never
// compared pairwise.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
