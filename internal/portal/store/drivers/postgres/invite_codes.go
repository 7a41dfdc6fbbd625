package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/jackc/pgx/v5"
)

type inviteCodesRepo struct {
	q querier
}

const inviteColumns = `code, org_id, role, expires_at, is_used, used_by, used_at, created_by, created_at`

func scanInvite(row pgx.Row) (domain.InviteCode, error) {
	var c domain.InviteCode
	err := row.Scan(&c.Code, &c.OrgID, &c.Role, &c.ExpiresAt, &c.Used, &c.UsedBy, &c.UsedAt, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return domain.InviteCode{}, mapNotFound(err)
	}
	c.ExpiresAt = utc(c.ExpiresAt)
	c.UsedAt = utcPtr(c.UsedAt)
	c.CreatedAt = utc(c.CreatedAt)
	return c, nil
}

func (r *inviteCodesRepo) CreateInviteCode(ctx context.Context, c domain.InviteCode) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO invite_codes (`+inviteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.Code, c.OrgID, c.Role, c.ExpiresAt, c.Used, c.UsedBy, c.UsedAt, c.CreatedBy, c.CreatedAt,
	)
	return mapWriteErr(err)
}

func (r *inviteCodesRepo) GetInviteCode(ctx context.Context, code string) (domain.InviteCode, error) {
	return scanInvite(r.q.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invite_codes WHERE code = $1`, code))
}

func (r *inviteCodesRepo) ListInviteCodes(ctx context.Context, orgID string) ([]domain.InviteCode, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+inviteColumns+` FROM invite_codes WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InviteCode
	for rows.Next() {
		c, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *inviteCodesRepo) MarkConsumed(ctx context.Context, code, usedBy string, now time.Time) (int64, error) {
	return rowsAffected(r.q.Exec(ctx, `
		UPDATE invite_codes SET is_used = TRUE, used_by = $1, used_at = $2
		WHERE code = $3 AND is_used = FALSE AND expires_at > $2`,
		usedBy, now, code))
}

func (r *inviteCodesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.q.Exec(ctx,
		`DELETE FROM invite_codes WHERE is_used = FALSE AND expires_at <= $1`, now))
}
