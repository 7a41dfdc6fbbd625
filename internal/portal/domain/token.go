package domain

import "time"

// RefreshToken is the stored record of an opaque refresh token. Only the
// fingerprint of the token is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Eligible reports whether the token may still be exchanged at now.
func (t RefreshToken) Eligible(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// AccessToken is a signed JWT together with its lifetime.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// IssuedRefreshToken is the plaintext refresh token, shown to the client once.
type IssuedRefreshToken struct {
	Token     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// TokenPair is what login and signup return.
type TokenPair struct {
	Access  AccessToken
	Refresh IssuedRefreshToken
}

// RefreshResult is the outcome of a refresh exchange. Refresh is nil when
// rotation is disabled and the client keeps its current refresh token.
type RefreshResult struct {
	Access  AccessToken
	Refresh *IssuedRefreshToken
}

// Subject is everything an access token says about its bearer.
type Subject struct {
	UserID string
	OrgID  string
	Role   string
	Email  string
}

// SubjectOf builds the token subject for u.
func SubjectOf(u User) Subject {
	return Subject{UserID: u.ID, OrgID: u.OrgID, Role: u.Role, Email: u.Email}
}
