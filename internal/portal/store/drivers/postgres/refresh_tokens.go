package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type refreshTokensRepo struct {
	q querier
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.RevokedAt, t.CreatedAt,
	)
	return mapWriteErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.q.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.ExpiresAt = utc(t.ExpiresAt)
	t.RevokedAt = utcPtr(t.RevokedAt)
	t.CreatedAt = utc(t.CreatedAt)
	return t, nil
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, id string, now time.Time) (int64, error) {
	return rowsAffected(r.q.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE id = $2 AND revoked_at IS NULL AND expires_at > $1`, now, id))
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	return rowsAffected(r.q.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL AND expires_at > $1`, now, userID))
}

func (r *refreshTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.q.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now))
}
