package domain

import "time"

// Roles a portal user can hold.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleUser
}

type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID           string
	OrgID        string
	Email        string // lower-cased, unique
	Name         string
	PasswordHash string // argon2id encoded
	Role         string
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
