package sqlite

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type orgsRepo struct {
	q querier
}

func (r *orgsRepo) CreateOrganization(ctx context.Context, o domain.Organization) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`,
		o.ID, o.Name, toMillis(o.CreatedAt))
	return mapWriteErr(err)
}

func (r *orgsRepo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var (
		o         domain.Organization
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = ?`, id,
	).Scan(&o.ID, &o.Name, &createdAt)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}
	o.CreatedAt = fromMillis(createdAt)
	return o, nil
}
