package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// Guard enforces bounded use. Every consumption is one conditional UPDATE
// whose WHERE clause is the eligibility predicate, so concurrent callers
// are serialised by the database and never by a read-then-write in Go.
//
// A zero row count is classified with a follow-up read. That read only
// picks the error to return; it never grants anything. The guard never
// retries.
//
// The repo arguments let callers run the guard inside a transaction.
type Guard struct {
	Clock   clockx.Clock
	Audit   Auditor
	Metrics *metrics.Metrics
}

func (g *Guard) clock() clockx.Clock {
	if g.Clock == nil {
		return clockx.Real()
	}
	return g.Clock
}

// RedeemOnce consumes an invite code on behalf of consumer. Exactly one of
// any number of concurrent callers succeeds; the rest get an error
// matching domain.ErrAlreadyConsumedOrExpired.
func (g *Guard) RedeemOnce(ctx context.Context, q store.InviteCodes, code, consumer string) (domain.InviteCode, error) {
	now := g.clock().Now()

	n, err := q.MarkConsumed(ctx, code, consumer, now)
	if err != nil {
		return domain.InviteCode{}, fmt.Errorf("redeem invite code: %w", err)
	}
	if n == 1 {
		inv, err := q.GetInviteCode(ctx, code)
		if err != nil {
			return domain.InviteCode{}, fmt.Errorf("reload invite code: %w", err)
		}
		g.Metrics.CredentialEvent(domain.ResourceInviteCode, string(domain.ActionRedeem), string(domain.OutcomeSuccess))
		return inv, nil
	}

	inv, err := q.GetInviteCode(ctx, code)
	var cause error
	switch {
	case errors.Is(err, store.ErrNotFound):
		cause = domain.ErrInvalidCredential
	case err != nil:
		return domain.InviteCode{}, fmt.Errorf("classify invite code: %w", err)
	case inv.Used:
		cause = domain.ErrAlreadyConsumed
	case !now.Before(inv.ExpiresAt):
		cause = domain.ErrExpiredCredential
	default:
		cause = domain.ErrAlreadyConsumed
	}

	slogx.FromContext(ctx).Info("invite code rejected",
		slog.String("reason", cause.Error()),
	)
	g.reject(ctx, domain.AuditEntry{
		OrgID:        inv.OrgID,
		ResourceType: domain.ResourceInviteCode,
		ResourceID:   code,
		Extra:        map[string]any{"consumer": consumer},
	}, cause)

	return domain.InviteCode{}, domain.InviteRejection(cause)
}

// TryIncrementUse spends one use of a form token. With max_uses = k, at
// most k calls ever succeed no matter how many race. Rejections match
// domain.ErrExhaustedOrExpiredOrInactive.
func (g *Guard) TryIncrementUse(ctx context.Context, q store.FormTokens, token string) (domain.FormAccessToken, error) {
	return g.consumeFormToken(ctx, q, token, q.IncrementUse, domain.ActionFormSubmission)
}

// RecordAccess counts a public read of a form token. It shares the
// eligibility predicate of TryIncrementUse but spends no use.
func (g *Guard) RecordAccess(ctx context.Context, q store.FormTokens, token string) (domain.FormAccessToken, error) {
	return g.consumeFormToken(ctx, q, token, q.RecordAccess, domain.ActionFormAccess)
}

func (g *Guard) consumeFormToken(
	ctx context.Context,
	q store.FormTokens,
	token string,
	update func(ctx context.Context, token string, now time.Time) (int64, error),
	action domain.AuditAction,
) (domain.FormAccessToken, error) {
	now := g.clock().Now()

	n, err := update(ctx, token, now)
	if err != nil {
		return domain.FormAccessToken{}, fmt.Errorf("%s: %w", action, err)
	}
	if n == 1 {
		t, err := q.GetFormTokenByToken(ctx, token)
		if err != nil {
			return domain.FormAccessToken{}, fmt.Errorf("reload form token: %w", err)
		}
		g.Metrics.CredentialEvent(domain.ResourceFormToken, string(action), string(domain.OutcomeSuccess))
		return t, nil
	}

	t, err := q.GetFormTokenByToken(ctx, token)
	var cause error
	switch {
	case errors.Is(err, store.ErrNotFound):
		cause = domain.ErrInvalidCredential
	case err != nil:
		return domain.FormAccessToken{}, fmt.Errorf("classify form token: %w", err)
	case !t.Active:
		cause = domain.ErrRevoked
	case t.Expired(now):
		cause = domain.ErrExpiredCredential
	default:
		cause = domain.ErrExhausted
	}

	g.reject(ctx, domain.AuditEntry{
		OrgID:        t.OrgID,
		ResourceType: domain.ResourceFormToken,
		ResourceID:   t.ID,
		Extra:        map[string]any{"attempted": string(action)},
	}, cause)

	return domain.FormAccessToken{}, domain.FormTokenRejection(cause)
}

func (g *Guard) reject(ctx context.Context, e domain.AuditEntry, cause error) {
	e.Action = domain.ActionRedemptionRejected
	e.Outcome = domain.OutcomeRejected
	e.Reason = cause.Error()
	e.Timestamp = g.clock().Now().UTC()
	emit(ctx, g.Audit, e)
	g.Metrics.CredentialEvent(e.ResourceType, string(e.Action), string(e.Outcome))
}
