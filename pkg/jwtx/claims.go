package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type this package mints. Refresh
// tokens are opaque random strings and never JWTs.
const TokenTypeAccess = "access"

// DefaultAccessTokenTTL keeps stolen access tokens short lived. The
// refresh flow covers the rest of a working session.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the access token claims understood by every portal service.
type Claims struct {
	jwt.RegisteredClaims

	// OrgID scopes every request to a single organization.
	OrgID string `json:"org"`

	// Role is "admin" or "user".
	Role string `json:"role"`

	Email string `json:"email,omitempty"`

	// Type must be TokenTypeAccess. It stops other JWTs signed by the same
	// keys from being accepted as bearer credentials.
	Type string `json:"typ"`
}

// AccessParams describes the subject an access token is minted for.
type AccessParams struct {
	Subject  string
	OrgID    string
	Role     string
	Email    string
	Issuer   string
	Audience []string
	TTL      time.Duration
	Now      time.Time
}

// NewAccessClaims builds the claim set for an access token.
func NewAccessClaims(p AccessParams) Claims {
	now := p.Now.UTC()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		OrgID: p.OrgID,
		Role:  p.Role,
		Email: p.Email,
		Type:  TokenTypeAccess,
	}
}

// NewJTI returns a random URL-safe token identifier.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the iss claim. An empty expectation always passes.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" || c.Issuer == expected {
		return nil
	}
	return ErrIssuer
}

// ValidateAudience passes when any expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateType rejects anything that is not an access token.
func (c *Claims) ValidateType() error {
	if c.Type != TokenTypeAccess {
		return ErrWrongType
	}
	return nil
}

// ExpiresIn returns the time left before exp, measured from now. It is
// never negative.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}
