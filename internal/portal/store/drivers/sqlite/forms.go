package sqlite

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type formsRepo struct {
	q querier
}

func (r *formsRepo) CreateForm(ctx context.Context, f domain.Form) error {
	fields := f.Fields
	if len(fields) == 0 {
		fields = json.RawMessage(`[]`)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO forms (id, org_id, title, description, fields, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.OrgID, f.Title, f.Description, string(fields), toMillis(f.CreatedAt))
	return mapWriteErr(err)
}

func (r *formsRepo) GetForm(ctx context.Context, orgID, id string) (domain.Form, error) {
	var (
		f         domain.Form
		fields    string
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, org_id, title, description, fields, created_at
		FROM forms WHERE id = ? AND org_id = ?`, id, orgID,
	).Scan(&f.ID, &f.OrgID, &f.Title, &f.Description, &fields, &createdAt)
	if err != nil {
		return domain.Form{}, mapNotFound(err)
	}
	f.Fields = json.RawMessage(fields)
	f.CreatedAt = fromMillis(createdAt)
	return f, nil
}

func (r *formsRepo) CreateCompany(ctx context.Context, c domain.Company) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO companies (id, org_id, name, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.OrgID, c.Name, toMillis(c.CreatedAt))
	return mapWriteErr(err)
}

func (r *formsRepo) GetCompany(ctx context.Context, orgID, id string) (domain.Company, error) {
	var (
		c         domain.Company
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, org_id, name, created_at FROM companies WHERE id = ? AND org_id = ?`, id, orgID,
	).Scan(&c.ID, &c.OrgID, &c.Name, &createdAt)
	if err != nil {
		return domain.Company{}, mapNotFound(err)
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}
