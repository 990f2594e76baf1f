package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/capability"
)

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestJWTResolverAcceptsValidToken(t *testing.T) {
	secret := []byte("test-secret")
	r := NewJWTResolver(secret, time.Minute)
	tok := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           7, TeamID: 3, Role: "admin",
	})

	p, err := r.Resolve(context.Background(), tok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID != 7 || p.TeamID != 3 || p.Role != capability.RoleAdmin {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestJWTResolverRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	r := NewJWTResolver(secret, 0)
	tok := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		UserID:           1, TeamID: 1, Role: "member",
	})

	_, err := r.Resolve(context.Background(), tok)
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("expected auth error for expired token, got %v", err)
	}
}

func TestJWTResolverRejectsWrongSecret(t *testing.T) {
	r := NewJWTResolver([]byte("correct-secret"), time.Minute)
	tok := signToken(t, []byte("wrong-secret"), Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           1, TeamID: 1, Role: "member",
	})

	_, err := r.Resolve(context.Background(), tok)
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("expected auth error for mismatched secret, got %v", err)
	}
}

func TestJWTResolverRejectsUnrecognizedRole(t *testing.T) {
	secret := []byte("test-secret")
	r := NewJWTResolver(secret, time.Minute)
	tok := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           1, TeamID: 1, Role: "superuser",
	})

	_, err := r.Resolve(context.Background(), tok)
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("expected auth error for unrecognized role, got %v", err)
	}
}

func TestJWTResolverRejectsMissingBearer(t *testing.T) {
	r := NewJWTResolver([]byte("s"), time.Minute)
	_, err := r.Resolve(context.Background(), "")
	if apierr.KindOf(err) != apierr.KindAuth {
		t.Fatalf("expected auth error for empty token, got %v", err)
	}
}

func TestStaticResolverAlwaysReturnsConfiguredPrincipal(t *testing.T) {
	s := Static{Principal: Principal{UserID: 9, TeamID: 2, Role: capability.RoleOwner}}
	p, err := s.Resolve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID != 9 || p.TeamID != 2 {
		t.Fatalf("unexpected principal: %+v", p)
	}
}
