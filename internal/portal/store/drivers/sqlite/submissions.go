package sqlite

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type submissionsRepo struct {
	q querier
}

func (r *submissionsRepo) CreateSubmission(ctx context.Context, s domain.FormSubmission) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO form_submissions
			(id, form_token_id, form_id, company_id, org_id, data, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.FormTokenID, s.FormID, s.CompanyID, s.OrgID, string(s.Data),
		s.IP, s.UserAgent, toMillis(s.CreatedAt))
	return mapWriteErr(err)
}

func (r *submissionsRepo) CountByFormToken(ctx context.Context, formTokenID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM form_submissions WHERE form_token_id = ?`, formTokenID,
	).Scan(&n)
	return n, err
}
