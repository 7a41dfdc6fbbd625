package postgres

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type orgsRepo struct {
	q querier
}

func (r *orgsRepo) CreateOrganization(ctx context.Context, o domain.Organization) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		o.ID, o.Name, o.CreatedAt)
	return mapWriteErr(err)
}

func (r *orgsRepo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	err := r.q.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}
	o.CreatedAt = utc(o.CreatedAt)
	return o, nil
}
