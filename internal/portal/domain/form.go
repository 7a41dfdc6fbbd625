package domain

import (
	"encoding/json"
	"time"
)

// FormAccessToken grants anonymous access to one form on behalf of one
// company. It may be capped by expiry, by use count, or both.
type FormAccessToken struct {
	ID             string
	Token          string
	OrgID          string
	FormID         string
	CompanyID      string
	ExpiresAt      *time.Time
	MaxUses        *int
	UseCount       int
	AccessCount    int
	Active         bool
	LastAccessedAt *time.Time
	CreatedBy      string
	CreatedAt      time.Time
}

// Expired reports whether the token has a deadline at or before now.
func (t FormAccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Exhausted reports whether every allowed use has been spent.
func (t FormAccessToken) Exhausted() bool {
	return t.MaxUses != nil && t.UseCount >= *t.MaxUses
}

// Eligible reports whether the token can still be used at now.
func (t FormAccessToken) Eligible(now time.Time) bool {
	return t.Active && !t.Expired(now) && !t.Exhausted()
}

// Remaining returns the uses left, or nil when uncapped.
func (t FormAccessToken) Remaining() *int {
	if t.MaxUses == nil {
		return nil
	}
	n := max(*t.MaxUses-t.UseCount, 0)
	return &n
}

type Form struct {
	ID          string
	OrgID       string
	Title       string
	Description string
	Fields      json.RawMessage
	CreatedAt   time.Time
}

type Company struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt time.Time
}

// FormSubmission is a public answer to a form, written only after the
// token's usage guard let it through.
type FormSubmission struct {
	ID          string
	FormTokenID string
	FormID      string
	CompanyID   string
	OrgID       string
	Data        json.RawMessage
	IP          string
	UserAgent   string
	CreatedAt   time.Time
}
