package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type auditRepo struct {
	q querier
}

func (r *auditRepo) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	var extra sql.NullString
	if len(e.Extra) > 0 {
		b, err := json.Marshal(e.Extra)
		if err != nil {
			return err
		}
		extra = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log
			(id, subject_id, org_id, action, resource_type, resource_id, outcome,
			 reason, ip, user_agent, extra, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, toNullString(e.SubjectID), e.OrgID, string(e.Action), e.ResourceType, e.ResourceID,
		string(e.Outcome), e.Reason, e.IP, e.UserAgent, extra, toMillis(e.Timestamp))
	return mapWriteErr(err)
}

func (r *auditRepo) ListAudit(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, subject_id, org_id, action, resource_type, resource_id, outcome,
		       reason, ip, user_agent, extra, created_at
		FROM audit_log WHERE org_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e               domain.AuditEntry
			subject, extra  sql.NullString
			action, outcome string
			createdAt       int64
		)
		if err := rows.Scan(&e.ID, &subject, &e.OrgID, &action, &e.ResourceType, &e.ResourceID,
			&outcome, &e.Reason, &e.IP, &e.UserAgent, &extra, &createdAt); err != nil {
			return nil, err
		}
		e.SubjectID = fromNullString(subject)
		e.Action = domain.AuditAction(action)
		e.Outcome = domain.AuditOutcome(outcome)
		e.Timestamp = fromMillis(createdAt)
		if extra.Valid {
			if err := json.Unmarshal([]byte(extra.String), &e.Extra); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
