package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"
)

func hs256Config() Config {
	return Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-signing-secret-test-signing"),
		Issuer:        "authcore-test",
		Audience:      "canvasforge",
		AccessTTL:     5 * time.Minute,
	}
}

func TestIssueAndVerifyAccess(t *testing.T) {
	issuer, err := NewIssuer(hs256Config())
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}

	signed, err := issuer.IssueAccess("user-1", "admin", "tenant-7")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	claims, err := issuer.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("sub = %q, want user-1", claims.Subject)
	}
	if claims.Role != "admin" || claims.TenantID != "tenant-7" {
		t.Fatalf("role/tenant = %q/%q", claims.Role, claims.TenantID)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("expected iat and exp to be set")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 5*time.Minute {
		t.Fatalf("token lifetime = %v, want 5m", got)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	var (
		mu      sync.Mutex
		current = time.Now()
	)
	cfg := hs256Config()
	cfg.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	issuer, err := NewIssuer(cfg)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}

	signed, err := issuer.IssueAccess("user-1", "member", "")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	mu.Lock()
	current = current.Add(10 * time.Minute)
	mu.Unlock()

	_, err = issuer.VerifyAccess(signed)
	if !errors.Is(err, ErrAccessExpired) {
		t.Fatalf("expected ErrAccessExpired, got %v", err)
	}
	if errors.Is(err, ErrAccessInvalid) {
		t.Fatal("expired must not also match ErrAccessInvalid")
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	issuer, err := NewIssuer(hs256Config())
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}

	signed, err := issuer.IssueAccess("user-1", "member", "")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	_, err = issuer.VerifyAccess(tampered)
	if !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid, got %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	issuer, err := NewIssuer(hs256Config())
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	other := hs256Config()
	other.PrivateKey = []byte("another-secret-another-secret-32")
	otherIssuer, err := NewIssuer(other)
	if err != nil {
		t.Fatalf("NewIssuer(other) error: %v", err)
	}

	signed, err := otherIssuer.IssueAccess("user-1", "member", "")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	if _, err := issuer.VerifyAccess(signed); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid for foreign signature, got %v", err)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}

	issuer, err := NewIssuer(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore-test",
		AccessTTL:     5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}

	signed, err := issuer.IssueAccess("user-1", "member", "tenant-1")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	claims, err := issuer.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("sub = %q, want user-1", claims.Subject)
	}
}

func TestNewSecretEntropyAndEncoding(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		s, err := NewSecret()
		if err != nil {
			t.Fatalf("NewSecret error: %v", err)
		}
		// 32 bytes base64url without padding is 43 characters.
		if len(s) != 43 {
			t.Fatalf("secret length = %d, want 43", len(s))
		}
		if seen[s] {
			t.Fatal("duplicate secret generated")
		}
		seen[s] = true
	}
}

func TestHashSecretIsDeterministic(t *testing.T) {
	s, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret error: %v", err)
	}

	// Hex SHA-256: 64 characters, stable per input, distinct across inputs.
	stored := HashSecret(s)
	if len(stored) != 64 {
		t.Fatalf("hash length = %d, want 64", len(stored))
	}
	if HashSecret(s) != stored {
		t.Fatal("expected the same secret to hash identically")
	}
	if HashSecret(s+"x") == stored {
		t.Fatal("expected different secrets to hash differently")
	}
}
