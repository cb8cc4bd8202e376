package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store/sqlite"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.PutUser(context.Background(), &store.User{ID: "alice", Username: "alice"}); err != nil {
		t.Fatalf("put user: %v", err)
	}

	return NewService(st, testJWTConfig())
}

func TestIssueToken_RoundTrip(t *testing.T) {
	svc := newTestAuthService(t)

	token, err := svc.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "alice" || claims.Subject != "alice" || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestIssueToken_UnknownUser(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.IssueToken(context.Background(), "nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	cfg := testJWTConfig()

	other := *cfg
	other.Secret = []byte("another-secret")
	foreign, err := GenerateToken(&other, "alice", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	wrongAudience := *cfg
	wrongAudience.Audience = "elsewhere"
	misaddressed, err := GenerateToken(&wrongAudience, "alice", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	expiredCfg := *cfg
	expiredCfg.TTL = -time.Minute
	expired, err := GenerateToken(&expiredCfg, "alice", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := map[string]string{
		"wrong secret":   foreign,
		"wrong audience": misaddressed,
		"expired":        expired,
		"alg none":       none,
		"garbage":        "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ValidateToken(cfg, token); err == nil {
				t.Fatalf("expected %s token to be rejected", name)
			}
		})
	}
}

func TestGenerateToken_RequiresUser(t *testing.T) {
	if _, err := GenerateToken(testJWTConfig(), "", "x"); err == nil || !strings.Contains(err.Error(), "user id") {
		t.Fatalf("expected user id error, got %v", err)
	}
}
