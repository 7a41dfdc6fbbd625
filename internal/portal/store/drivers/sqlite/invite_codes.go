package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type inviteCodesRepo struct {
	q querier
}

const inviteColumns = `code, org_id, role, expires_at, is_used, used_by, used_at, created_by, created_at`

func scanInvite(row interface{ Scan(...any) error }) (domain.InviteCode, error) {
	var (
		c                    domain.InviteCode
		expiresAt, createdAt int64
		used                 int
		usedBy               sql.NullString
		usedAt               sql.NullInt64
	)
	err := row.Scan(&c.Code, &c.OrgID, &c.Role, &expiresAt, &used, &usedBy, &usedAt, &c.CreatedBy, &createdAt)
	if err != nil {
		return domain.InviteCode{}, mapNotFound(err)
	}
	c.ExpiresAt = fromMillis(expiresAt)
	c.Used = used != 0
	c.UsedBy = fromNullString(usedBy)
	c.UsedAt = fromNullMillis(usedAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *inviteCodesRepo) CreateInviteCode(ctx context.Context, c domain.InviteCode) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invite_codes (`+inviteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, c.OrgID, c.Role, toMillis(c.ExpiresAt), boolInt(c.Used),
		toNullString(c.UsedBy), toNullMillis(c.UsedAt), c.CreatedBy, toMillis(c.CreatedAt),
	)
	return mapWriteErr(err)
}

func (r *inviteCodesRepo) GetInviteCode(ctx context.Context, code string) (domain.InviteCode, error) {
	return scanInvite(r.q.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM invite_codes WHERE code = ?`, code))
}

func (r *inviteCodesRepo) ListInviteCodes(ctx context.Context, orgID string) ([]domain.InviteCode, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM invite_codes WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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
	ms := toMillis(now)
	return rowsAffected(r.q.ExecContext(ctx, `
		UPDATE invite_codes SET is_used = 1, used_by = ?, used_at = ?
		WHERE code = ? AND is_used = 0 AND expires_at > ?`,
		usedBy, ms, code, ms))
}

func (r *inviteCodesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.q.ExecContext(ctx,
		`DELETE FROM invite_codes WHERE is_used = 0 AND expires_at <= ?`, toMillis(now)))
}
