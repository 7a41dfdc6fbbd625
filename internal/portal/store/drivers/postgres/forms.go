package postgres

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
	_, err := r.q.Exec(ctx, `
		INSERT INTO forms (id, org_id, title, description, fields, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.OrgID, f.Title, f.Description, string(fields), f.CreatedAt)
	return mapWriteErr(err)
}

func (r *formsRepo) GetForm(ctx context.Context, orgID, id string) (domain.Form, error) {
	var (
		f      domain.Form
		fields []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, org_id, title, description, fields, created_at
		FROM forms WHERE id = $1 AND org_id = $2`, id, orgID,
	).Scan(&f.ID, &f.OrgID, &f.Title, &f.Description, &fields, &f.CreatedAt)
	if err != nil {
		return domain.Form{}, mapNotFound(err)
	}
	f.Fields = json.RawMessage(fields)
	f.CreatedAt = utc(f.CreatedAt)
	return f, nil
}

func (r *formsRepo) CreateCompany(ctx context.Context, c domain.Company) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO companies (id, org_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.OrgID, c.Name, c.CreatedAt)
	return mapWriteErr(err)
}

func (r *formsRepo) GetCompany(ctx context.Context, orgID, id string) (domain.Company, error) {
	var c domain.Company
	err := r.q.QueryRow(ctx,
		`SELECT id, org_id, name, created_at FROM companies WHERE id = $1 AND org_id = $2`, id, orgID,
	).Scan(&c.ID, &c.OrgID, &c.Name, &c.CreatedAt)
	if err != nil {
		return domain.Company{}, mapNotFound(err)
	}
	c.CreatedAt = utc(c.CreatedAt)
	return c, nil
}
