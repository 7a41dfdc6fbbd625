package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/portal/internal/portal/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer Store owns the database handle.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.tx} }
func (t *txStore) Organizations() store.Organizations { return &orgsRepo{q: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.tx} }
func (t *txStore) InviteCodes() store.InviteCodes     { return &inviteCodesRepo{q: t.tx} }
func (t *txStore) FormTokens() store.FormTokens       { return &formTokensRepo{q: t.tx} }
func (t *txStore) Forms() store.Forms                 { return &formsRepo{q: t.tx} }
func (t *txStore) Submissions() store.Submissions     { return &submissionsRepo{q: t.tx} }
func (t *txStore) AuditLog() store.AuditLog           { return &auditRepo{q: t.tx} }

// ApplyMigrations is a no-op; migrations run before any transaction.
func (t *txStore) ApplyMigrations() error { return nil }
