package domain

import "time"

// InviteCode is a short single-use code that lets a new user join an
// organization with a preset role.
type InviteCode struct {
	Code      string // 8 characters, A-Z0-9
	OrgID     string
	Role      string
	ExpiresAt time.Time
	Used      bool
	UsedBy    *string
	UsedAt    *time.Time
	CreatedBy string
	CreatedAt time.Time
}

// Eligible reports whether the code can still be redeemed at now.
func (c InviteCode) Eligible(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
