package postgres

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type auditRepo struct {
	q querier
}

func (r *auditRepo) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	var extra *string
	if len(e.Extra) > 0 {
		b, err := json.Marshal(e.Extra)
		if err != nil {
			return err
		}
		s := string(b)
		extra = &s
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_log
			(id, subject_id, org_id, action, resource_type, resource_id, outcome,
			 reason, ip, user_agent, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.SubjectID, e.OrgID, string(e.Action), e.ResourceType, e.ResourceID,
		string(e.Outcome), e.Reason, e.IP, e.UserAgent, extra, e.Timestamp)
	return mapWriteErr(err)
}

func (r *auditRepo) ListAudit(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, subject_id, org_id, action, resource_type, resource_id, outcome,
		       reason, ip, user_agent, extra, created_at
		FROM audit_log WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e               domain.AuditEntry
			action, outcome string
			extra           []byte
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.OrgID, &action, &e.ResourceType, &e.ResourceID,
			&outcome, &e.Reason, &e.IP, &e.UserAgent, &extra, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = domain.AuditAction(action)
		e.Outcome = domain.AuditOutcome(outcome)
		e.Timestamp = utc(e.Timestamp)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.Extra); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
