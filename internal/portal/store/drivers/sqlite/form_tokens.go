package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type formTokensRepo struct {
	q querier
}

const formTokenColumns = `id, token, org_id, form_id, company_id, expires_at, max_uses,
	use_count, access_count, active, last_accessed_at, created_by, created_at`

// eligibleFormToken is the WHERE clause shared by every guarded update.
// The single bind parameter is now in unix millis.
const eligibleFormToken = `active = 1
	AND (expires_at IS NULL OR expires_at > ?)
	AND (max_uses IS NULL OR use_count < max_uses)`

func scanFormToken(row interface{ Scan(...any) error }) (domain.FormAccessToken, error) {
	var (
		t                  domain.FormAccessToken
		expiresAt, maxUses sql.NullInt64
		lastAccess         sql.NullInt64
		active             int
		createdAt          int64
	)
	err := row.Scan(&t.ID, &t.Token, &t.OrgID, &t.FormID, &t.CompanyID, &expiresAt, &maxUses,
		&t.UseCount, &t.AccessCount, &active, &lastAccess, &t.CreatedBy, &createdAt)
	if err != nil {
		return domain.FormAccessToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromNullMillis(expiresAt)
	t.MaxUses = fromNullInt(maxUses)
	t.Active = active != 0
	t.LastAccessedAt = fromNullMillis(lastAccess)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *formTokensRepo) CreateFormToken(ctx context.Context, t domain.FormAccessToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO form_tokens (`+formTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Token, t.OrgID, t.FormID, t.CompanyID, toNullMillis(t.ExpiresAt), toNullInt(t.MaxUses),
		t.UseCount, t.AccessCount, boolInt(t.Active), toNullMillis(t.LastAccessedAt), t.CreatedBy, toMillis(t.CreatedAt),
	)
	return mapWriteErr(err)
}

func (r *formTokensRepo) GetFormTokenByToken(ctx context.Context, token string) (domain.FormAccessToken, error) {
	return scanFormToken(r.q.QueryRowContext(ctx,
		`SELECT `+formTokenColumns+` FROM form_tokens WHERE token = ?`, token))
}

func (r *formTokensRepo) GetFormTokenByID(ctx context.Context, id string) (domain.FormAccessToken, error) {
	return scanFormToken(r.q.QueryRowContext(ctx,
		`SELECT `+formTokenColumns+` FROM form_tokens WHERE id = ?`, id))
}

func (r *formTokensRepo) ListFormTokens(ctx context.Context, orgID, formID string) ([]domain.FormAccessToken, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+formTokenColumns+` FROM form_tokens
		WHERE org_id = ? AND form_id = ? ORDER BY created_at DESC`, orgID, formID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.FormAccessToken
	for rows.Next() {
		t, err := scanFormToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *formTokensRepo) IncrementUse(ctx context.Context, token string, now time.Time) (int64, error) {
	return rowsAffected(r.q.ExecContext(ctx, `
		UPDATE form_tokens SET use_count = use_count + 1
		WHERE token = ? AND `+eligibleFormToken,
		token, toMillis(now)))
}

func (r *formTokensRepo) RecordAccess(ctx context.Context, token string, now time.Time) (int64, error) {
	ms := toMillis(now)
	return rowsAffected(r.q.ExecContext(ctx, `
		UPDATE form_tokens SET access_count = access_count + 1, last_accessed_at = ?
		WHERE token = ? AND `+eligibleFormToken,
		ms, token, ms))
}

func (r *formTokensRepo) Deactivate(ctx context.Context, orgID, id string) (int64, error) {
	return rowsAffected(r.q.ExecContext(ctx,
		`UPDATE form_tokens SET active = 0 WHERE id = ? AND org_id = ? AND active = 1`,
		id, orgID))
}
