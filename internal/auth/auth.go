// Package auth carries the authenticated principal from transports into services.
//
// Identity is established elsewhere; the economy only verifies HS256 bearer tokens signed with the
// shared key. The role claim is advisory: services authorize against the stored account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
)

// Principal is the authenticated caller.
type Principal struct {
	ID    string
	Email string
	Role  model.Role
}

// Claims is the token payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies access tokens.
type Tokens struct {
	key    []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewTokens constructs a signer/verifier for key. ttl applies to issued tokens.
func NewTokens(key []byte, ttl time.Duration) *Tokens {
	return &Tokens{key: key, ttl: ttl, leeway: 30 * time.Second, now: time.Now}
}

// Issue creates a signed HS256 JWT for p.
func (t *Tokens) Issue(p Principal) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Email: p.Email,
		Role:  string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.key)
	return signed, exp, err
}

// Verify checks signature and validity window and returns the principal.
func (t *Tokens) Verify(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tk *jwt.Token) (any, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	}, jwt.WithLeeway(t.leeway), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("empty subject: %w", errs.ErrUnauthorized)
	}
	p := Principal{ID: claims.Subject, Email: claims.Email}
	if claims.Role != "" {
		if r, err := model.ParseRole(claims.Role); err == nil {
			p.Role = r
		}
	}
	return p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <jwt>" value.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if tok := strings.TrimSpace(v[7:]); tok != "" {
			return tok, true
		}
	}
	return "", false
}

type ctxKey string

const principalKey ctxKey = "ifcoins.principal"

// WithPrincipal stores the authenticated principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext fetches the principal from context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.ID != ""
}
