package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectionUmbrellas(t *testing.T) {
	for _, cause := range []error{domain.ErrInvalidCredential, domain.ErrAlreadyConsumed, domain.ErrExpiredCredential} {
		err := fmt.Errorf("redeem: %w", domain.InviteRejection(cause))
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, domain.ErrAlreadyConsumedOrExpired)
		assert.NotErrorIs(t, err, domain.ErrExhaustedOrExpiredOrInactive)
		assert.Equal(t, "redeem: "+cause.Error(), err.Error())
	}

	for _, cause := range []error{domain.ErrInvalidCredential, domain.ErrRevoked, domain.ErrExpiredCredential, domain.ErrExhausted} {
		err := domain.FormTokenRejection(cause)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, domain.ErrExhaustedOrExpiredOrInactive)
	}

	err := domain.RefreshRejection(domain.ErrRevoked)
	require.ErrorIs(t, err, domain.ErrInvalidOrRevokedRefreshToken)
	require.ErrorIs(t, err, domain.ErrRevoked)
	require.False(t, errors.Is(domain.ErrRevoked, domain.ErrInvalidOrRevokedRefreshToken))
}

func TestFormTokenEligibility(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Second), now.Add(time.Hour)
	five := 5

	tests := []struct {
		name string
		tok  domain.FormAccessToken
		want bool
	}{
		{"uncapped", domain.FormAccessToken{Active: true}, true},
		{"future expiry", domain.FormAccessToken{Active: true, ExpiresAt: &future}, true},
		{"expired", domain.FormAccessToken{Active: true, ExpiresAt: &past}, false},
		{"expires exactly now", domain.FormAccessToken{Active: true, ExpiresAt: &now}, false},
		{"inactive", domain.FormAccessToken{Active: false}, false},
		{"under cap", domain.FormAccessToken{Active: true, MaxUses: &five, UseCount: 4}, true},
		{"at cap", domain.FormAccessToken{Active: true, MaxUses: &five, UseCount: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.Eligible(now))
		})
	}

	tok := domain.FormAccessToken{MaxUses: &five, UseCount: 2}
	require.Equal(t, 3, *tok.Remaining())
	require.Nil(t, domain.FormAccessToken{}.Remaining())
}

func TestInviteAndRefreshEligibility(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	code := domain.InviteCode{ExpiresAt: now.Add(-time.Second)}
	require.False(t, code.Eligible(now))
	code.ExpiresAt = now.Add(time.Hour)
	require.True(t, code.Eligible(now))
	code.Used = true
	require.False(t, code.Eligible(now))

	rt := domain.RefreshToken{ExpiresAt: now.Add(time.Hour)}
	require.True(t, rt.Eligible(now))
	rt.RevokedAt = &now
	require.False(t, rt.Eligible(now))
}
