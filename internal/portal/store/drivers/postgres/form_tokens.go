package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/jackc/pgx/v5"
)

type formTokensRepo struct {
	q querier
}

const formTokenColumns = `id, token, org_id, form_id, company_id, expires_at, max_uses,
	use_count, access_count, active, last_accessed_at, created_by, created_at`

// eligibleFormToken expects now bound to $2.
const eligibleFormToken = `active
	AND (expires_at IS NULL OR expires_at > $2)
	AND (max_uses IS NULL OR use_count < max_uses)`

func scanFormToken(row pgx.Row) (domain.FormAccessToken, error) {
	var t domain.FormAccessToken
	err := row.Scan(&t.ID, &t.Token, &t.OrgID, &t.FormID, &t.CompanyID, &t.ExpiresAt, &t.MaxUses,
		&t.UseCount, &t.AccessCount, &t.Active, &t.LastAccessedAt, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return domain.FormAccessToken{}, mapNotFound(err)
	}
	t.ExpiresAt = utcPtr(t.ExpiresAt)
	t.LastAccessedAt = utcPtr(t.LastAccessedAt)
	t.CreatedAt = utc(t.CreatedAt)
	return t, nil
}

func (r *formTokensRepo) CreateFormToken(ctx context.Context, t domain.FormAccessToken) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO form_tokens (`+formTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.Token, t.OrgID, t.FormID, t.CompanyID, t.ExpiresAt, t.MaxUses,
		t.UseCount, t.AccessCount, t.Active, t.LastAccessedAt, t.CreatedBy, t.CreatedAt,
	)
	return mapWriteErr(err)
}

func (r *formTokensRepo) GetFormTokenByToken(ctx context.Context, token string) (domain.FormAccessToken, error) {
	return scanFormToken(r.q.QueryRow(ctx, `SELECT `+formTokenColumns+` FROM form_tokens WHERE token = $1`, token))
}

func (r *formTokensRepo) GetFormTokenByID(ctx context.Context, id string) (domain.FormAccessToken, error) {
	return scanFormToken(r.q.QueryRow(ctx, `SELECT `+formTokenColumns+` FROM form_tokens WHERE id = $1`, id))
}

func (r *formTokensRepo) ListFormTokens(ctx context.Context, orgID, formID string) ([]domain.FormAccessToken, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+formTokenColumns+` FROM form_tokens
		WHERE org_id = $1 AND form_id = $2 ORDER BY created_at DESC`, orgID, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
	return rowsAffected(r.q.Exec(ctx, `
		UPDATE form_tokens SET use_count = use_count + 1
		WHERE token = $1 AND `+eligibleFormToken, token, now))
}

func (r *formTokensRepo) RecordAccess(ctx context.Context, token string, now time.Time) (int64, error) {
	return rowsAffected(r.q.Exec(ctx, `
		UPDATE form_tokens SET access_count = access_count + 1, last_accessed_at = $2
		WHERE token = $1 AND `+eligibleFormToken, token, now))
}

func (r *formTokensRepo) Deactivate(ctx context.Context, orgID, id string) (int64, error) {
	return rowsAffected(r.q.Exec(ctx,
		`UPDATE form_tokens SET active = FALSE WHERE id = $1 AND org_id = $2 AND active`, id, orgID))
}
