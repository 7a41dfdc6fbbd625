package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it and expose one sub-repository per entity.
//
// Every eligibility-sensitive mutation is a single conditional UPDATE that
// returns the affected-row count. Zero rows means the predicate did not
// hold and nothing changed; callers decide what that means.
type Store interface {
	Users() Users
	Organizations() Organizations
	RefreshTokens() RefreshTokens
	InviteCodes() InviteCodes
	FormTokens() FormTokens
	Forms() Forms
	Submissions() Submissions
	AuditLog() AuditLog

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing when fn returns nil
	// and rolling back otherwise. Inside fn only use the repos of tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Nested transactions are not supported.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up by the lower-cased email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

type Organizations interface {
	CreateOrganization(ctx context.Context, o domain.Organization) error
	GetOrganization(ctx context.Context, id string) (domain.Organization, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// Revoke sets revoked_at on a token that is still unrevoked and unexpired.
	Revoke(ctx context.Context, id string, now time.Time) (int64, error)

	// RevokeAllForUser revokes every live token of a user.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type InviteCodes interface {
	CreateInviteCode(ctx context.Context, c domain.InviteCode) error
	GetInviteCode(ctx context.Context, code string) (domain.InviteCode, error)
	ListInviteCodes(ctx context.Context, orgID string) ([]domain.InviteCode, error)

	// MarkConsumed flips is_used on an unused, unexpired code.
	MarkConsumed(ctx context.Context, code, usedBy string, now time.Time) (int64, error)

	// DeleteExpired removes unused codes past expiry. Consumed codes stay.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type FormTokens interface {
	CreateFormToken(ctx context.Context, t domain.FormAccessToken) error
	GetFormTokenByToken(ctx context.Context, token string) (domain.FormAccessToken, error)
	GetFormTokenByID(ctx context.Context, id string) (domain.FormAccessToken, error)
	ListFormTokens(ctx context.Context, orgID, formID string) ([]domain.FormAccessToken, error)

	// IncrementUse adds one to use_count while the token is eligible.
	IncrementUse(ctx context.Context, token string, now time.Time) (int64, error)

	// RecordAccess bumps access_count and last_accessed_at while the token
	// is eligible.
	RecordAccess(ctx context.Context, token string, now time.Time) (int64, error)

	// Deactivate clears active on a token of orgID that is still active.
	Deactivate(ctx context.Context, orgID, id string) (int64, error)
}

type Forms interface {
	CreateForm(ctx context.Context, f domain.Form) error
	GetForm(ctx context.Context, orgID, id string) (domain.Form, error)
	CreateCompany(ctx context.Context, c domain.Company) error
	GetCompany(ctx context.Context, orgID, id string) (domain.Company, error)
}

type Submissions interface {
	CreateSubmission(ctx context.Context, s domain.FormSubmission) error
	CountByFormToken(ctx context.Context, formTokenID string) (int, error)
}

// AuditLog is append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
	ListAudit(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error)
}
