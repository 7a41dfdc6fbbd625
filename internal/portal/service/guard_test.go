package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

func TestRedeemOnceExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.invite(t, "RACE0001", h.clock.Now().Add(time.Hour))

	const n = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		consumed  atomic.Int32
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.guard.RedeemOnce(ctx, h.store.InviteCodes(), "RACE0001", fmt.Sprintf("user-%d", i))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrAlreadyConsumed) && errors.Is(err, domain.ErrAlreadyConsumedOrExpired):
				consumed.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, n-1, consumed.Load())
	assert.Equal(t, n-1, h.audit.count(domain.ActionRedemptionRejected, domain.OutcomeRejected))

	inv, err := h.store.InviteCodes().GetInviteCode(ctx, "RACE0001")
	require.NoError(t, err)
	assert.True(t, inv.Used)
	require.NotNil(t, inv.UsedBy)
}

func TestRedeemOnceClassifiesRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	h.invite(t, "EXPIRED1", now.Add(-time.Second))
	h.invite(t, "FRESH001", now.Add(time.Hour))

	_, err := h.guard.RedeemOnce(ctx, h.store.InviteCodes(), "NOPE0000", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	assert.ErrorIs(t, err, domain.ErrAlreadyConsumedOrExpired)

	_, err = h.guard.RedeemOnce(ctx, h.store.InviteCodes(), "EXPIRED1", "u1")
	assert.ErrorIs(t, err, domain.ErrExpiredCredential)
	assert.ErrorIs(t, err, domain.ErrAlreadyConsumedOrExpired)

	inv, err := h.guard.RedeemOnce(ctx, h.store.InviteCodes(), "FRESH001", "u1")
	require.NoError(t, err)
	assert.True(t, inv.Used)
	assert.Equal(t, "u1", *inv.UsedBy)

	_, err = h.guard.RedeemOnce(ctx, h.store.InviteCodes(), "FRESH001", "u2")
	assert.ErrorIs(t, err, domain.ErrAlreadyConsumed)
}

func TestRedeemOnceAtExpiryInstant(t *testing.T) {
	h := newHarness(t)
	h.invite(t, "EDGE0001", h.clock.Now().Add(time.Minute))
	h.clock.Advance(time.Minute)

	_, err := h.guard.RedeemOnce(context.Background(), h.store.InviteCodes(), "EDGE0001", "u1")
	assert.ErrorIs(t, err, domain.ErrExpiredCredential)
}

func TestSubmitRespectsUsageCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.forms.IssueToken(ctx, h.fx.Org.ID, h.fx.Form.ID, h.fx.Company.ID, nil, intPtr(5), h.fx.Admin.ID)
	require.NoError(t, err)

	const n = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		exhausted atomic.Int32
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
			_, err := h.forms.Submit(ctx, tok.Token, data)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrExhausted) && errors.Is(err, domain.ErrExhaustedOrExpiredOrInactive):
				exhausted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, successes.Load())
	assert.EqualValues(t, 15, exhausted.Load())

	got, err := h.store.FormTokens().GetFormTokenByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.UseCount)

	count, err := h.store.Submissions().CountByFormToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestFormTokenRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	day := 24 * time.Hour
	expiring, err := h.forms.IssueToken(ctx, h.fx.Org.ID, h.fx.Form.ID, h.fx.Company.ID, &day, nil, h.fx.Admin.ID)
	require.NoError(t, err)
	revoked, err := h.forms.IssueToken(ctx, h.fx.Org.ID, h.fx.Form.ID, h.fx.Company.ID, nil, nil, h.fx.Admin.ID)
	require.NoError(t, err)
	_, err = h.forms.Deactivate(ctx, h.fx.Org.ID, revoked.ID, h.fx.Admin.ID)
	require.NoError(t, err)

	_, err = h.forms.Open(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = h.forms.Open(ctx, revoked.Token)
	assert.ErrorIs(t, err, domain.ErrRevoked)
	assert.ErrorIs(t, err, domain.ErrExhaustedOrExpiredOrInactive)

	view, err := h.forms.Open(ctx, expiring.Token)
	require.NoError(t, err)
	assert.Equal(t, h.fx.Form.Title, view.Form.Title)
	assert.Equal(t, h.fx.Company.Name, view.Company.Name)
	assert.Equal(t, 1, view.Token.AccessCount)
	assert.Zero(t, view.Token.UseCount)

	h.clock.Advance(day)
	_, err = h.forms.Submit(ctx, expiring.Token, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrExpiredCredential)
	assert.ErrorIs(t, err, domain.ErrExhaustedOrExpiredOrInactive)

	assert.Equal(t, 3, h.audit.count(domain.ActionRedemptionRejected, domain.OutcomeRejected))
}

func TestSubmitRejectsNonObjectData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok, err := h.forms.IssueToken(ctx, h.fx.Org.ID, h.fx.Form.ID, h.fx.Company.ID, nil, intPtr(1), h.fx.Admin.ID)
	require.NoError(t, err)

	for _, data := range []string{``, `[]`, `"x"`, `{bad`} {
		_, err := h.forms.Submit(ctx, tok.Token, json.RawMessage(data))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "data %q", data)
	}

	got, err := h.store.FormTokens().GetFormTokenByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UseCount, "invalid data must not spend a use")
}

func intPtr(n int) *int { return &n }
