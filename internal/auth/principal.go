// Package auth resolves the caller behind an incoming chat-entry request.
// Authentication primitives themselves (password hashing, JWT minting) are
// out of the Agent Orchestration Core's scope per spec §1 — they are
// consumed through the PrincipalResolver interface. This package also
// supplies one concrete, ready-to-use resolver (bearer JWT) so the core is
// runnable standalone without an external auth service, mirroring the
// teacher's own practice of shipping a default alongside a pluggable seam
// (internal/llm/auth.go's AuthStore.GetAPIKey: a default key-file client
// sitting behind what would otherwise require an external token broker).
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/capability"
)

// Principal is the resolved identity and active-team context a chat-entry
// request carries once authenticated. Role gates capability derivation
// (spec §4.4); TeamID scopes every downstream read/write (spec invariant 1).
type Principal struct {
	UserID   int64
	TeamID   int64
	Role     capability.Role
	Subject  string // raw token subject, for audit logging only
}

// Resolver turns a bearer credential into a Principal. The core depends
// only on this interface; concrete implementations (JWT, session cookie,
// mTLS client cert, an upstream IdP callout) live outside the core or, for
// JWTResolver, alongside it as the shipped default.
type Resolver interface {
	Resolve(ctx context.Context, bearerToken string) (*Principal, error)
}

// Claims is the expected JWT payload shape: a user id, the caller's active
// team, and a role already asserted by whatever minted the token (the core
// does not re-derive role from a membership table — that CRUD lives outside
// the core per spec §1).
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	TeamID int64  `json:"team_id"`
	Role   string `json:"role"`
}

// JWTResolver validates a bearer token with a single shared HMAC secret.
// Grounded on internal/llm/auth.go's AuthStore: a small, self-contained
// credential store with an expiry check, no external call on the hot path.
type JWTResolver struct {
	secret []byte
	leeway time.Duration
}

// NewJWTResolver builds a resolver over a server-wide signing secret.
// leeway absorbs clock skew between the token issuer and this process,
// mirroring AuthStore's OAuth refresh buffer rather than failing closed on
// a token that is only seconds past its nominal expiry.
func NewJWTResolver(secret []byte, leeway time.Duration) *JWTResolver {
	return &JWTResolver{secret: secret, leeway: leeway}
}

func (r *JWTResolver) Resolve(ctx context.Context, bearerToken string) (*Principal, error) {
	if bearerToken == "" {
		return nil, apierr.New(apierr.KindAuth, "missing bearer token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(bearerToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierr.New(apierr.KindAuth, "unexpected signing method")
		}
		return r.secret, nil
	}, jwt.WithLeeway(r.leeway))
	if err != nil || !token.Valid {
		return nil, apierr.Wrap(apierr.KindAuth, "invalid bearer token", err)
	}

	role := capability.Role(claims.Role)
	switch role {
	case capability.RoleOwner, capability.RoleAdmin, capability.RoleMember:
	default:
		return nil, apierr.New(apierr.KindAuth, "token carries an unrecognized role")
	}

	if claims.UserID == 0 || claims.TeamID == 0 {
		return nil, apierr.New(apierr.KindAuth, "token missing user_id/team_id")
	}

	return &Principal{UserID: claims.UserID, TeamID: claims.TeamID, Role: role, Subject: claims.Subject}, nil
}

// Static is a fixed-principal resolver useful for local development and
// tests, where every request authenticates as the same configured caller.
type Static struct {
	Principal Principal
}

func (s Static) Resolve(ctx context.Context, bearerToken string) (*Principal, error) {
	p := s.Principal
	return &p, nil
}
