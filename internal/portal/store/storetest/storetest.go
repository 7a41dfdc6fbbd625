// Package storetest holds the behavioural suite every store driver must pass.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Now is the reference instant used by the suite. It is whole seconds so
// every driver can round-trip it exactly.
var Now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// Factory returns a migrated, empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite against the driver built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("RefreshTokens", func(t *testing.T) { testRefreshTokens(t, newStore(t)) })
	t.Run("InviteCodes", func(t *testing.T) { testInviteCodes(t, newStore(t)) })
	t.Run("InviteExactlyOnce", func(t *testing.T) { testInviteExactlyOnce(t, newStore(t)) })
	t.Run("FormTokens", func(t *testing.T) { testFormTokens(t, newStore(t)) })
	t.Run("FormTokenCap", func(t *testing.T) { testFormTokenCap(t, newStore(t)) })
	t.Run("Submissions", func(t *testing.T) { testSubmissions(t, newStore(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
}

// Fixture is a seeded organization with one admin, one form and one company.
type Fixture struct {
	Org     domain.Organization
	Admin   domain.User
	Form    domain.Form
	Company domain.Company
}

// Seed writes a Fixture into s.
func Seed(t *testing.T, s store.Store) Fixture {
	t.Helper()
	ctx := context.Background()

	f := Fixture{
		Org: domain.Organization{ID: idx.New().String(), Name: "Acme Super", CreatedAt: Now},
	}
	require.NoError(t, s.Organizations().CreateOrganization(ctx, f.Org))

	f.Admin = domain.User{
		ID: idx.New().String(), OrgID: f.Org.ID, Email: "admin@acme.test", Name: "Ada",
		PasswordHash: "hash", Role: domain.RoleAdmin, Active: true, CreatedAt: Now, UpdatedAt: Now,
	}
	require.NoError(t, s.Users().CreateUser(ctx, f.Admin))

	f.Form = domain.Form{
		ID: idx.New().String(), OrgID: f.Org.ID, Title: "Enrolment",
		Fields: json.RawMessage(`[{"name":"tfn","type":"text"}]`), CreatedAt: Now,
	}
	require.NoError(t, s.Forms().CreateForm(ctx, f.Form))

	f.Company = domain.Company{ID: idx.New().String(), OrgID: f.Org.ID, Name: "Widgets Pty", CreatedAt: Now}
	require.NoError(t, s.Forms().CreateCompany(ctx, f.Company))

	return f
}

func newFormToken(f Fixture, token string, expiresAt *time.Time, maxUses *int) domain.FormAccessToken {
	return domain.FormAccessToken{
		ID: idx.New().String(), Token: token, OrgID: f.Org.ID, FormID: f.Form.ID,
		CompanyID: f.Company.ID, ExpiresAt: expiresAt, MaxUses: maxUses, Active: true,
		CreatedBy: f.Admin.ID, CreatedAt: Now,
	}
}

func ptr[T any](v T) *T { return &v }

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	got, err := s.Users().GetUserByEmail(ctx, "ADMIN@acme.test")
	require.NoError(t, err)
	require.Equal(t, f.Admin.ID, got.ID)
	require.True(t, got.Active)
	require.Nil(t, got.LastLoginAt)
	require.True(t, Now.Equal(got.CreatedAt))

	dup := f.Admin
	dup.ID = idx.New().String()
	dup.Email = "Admin@Acme.test"
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	require.NoError(t, s.Users().UpdateLastLogin(ctx, f.Admin.ID, Now.Add(time.Minute)))
	require.NoError(t, s.Users().SetActive(ctx, f.Admin.ID, false, Now.Add(time.Minute)))
	got, err = s.Users().GetUserByID(ctx, f.Admin.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, Now.Add(time.Minute).Equal(*got.LastLoginAt))

	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Users().UpdateLastLogin(ctx, "missing", Now), store.ErrNotFound)

	org, err := s.Organizations().GetOrganization(ctx, f.Org.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Super", org.Name)
}

func testRefreshTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	repo := s.RefreshTokens()

	live := domain.RefreshToken{ID: idx.New().String(), UserID: f.Admin.ID, TokenHash: "h-live", ExpiresAt: Now.Add(time.Hour), CreatedAt: Now}
	second := domain.RefreshToken{ID: idx.New().String(), UserID: f.Admin.ID, TokenHash: "h-second", ExpiresAt: Now.Add(time.Hour), CreatedAt: Now}
	stale := domain.RefreshToken{ID: idx.New().String(), UserID: f.Admin.ID, TokenHash: "h-stale", ExpiresAt: Now.Add(-time.Second), CreatedAt: Now.Add(-time.Hour)}
	for _, rt := range []domain.RefreshToken{live, second, stale} {
		require.NoError(t, repo.CreateRefreshToken(ctx, rt))
	}
	require.ErrorIs(t, repo.CreateRefreshToken(ctx, live), store.ErrAlreadyExists)

	got, err := repo.GetRefreshTokenByHash(ctx, "h-live")
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)
	require.Nil(t, got.RevokedAt)
	require.True(t, live.ExpiresAt.Equal(got.ExpiresAt))

	n, err := repo.Revoke(ctx, live.ID, Now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = repo.Revoke(ctx, live.ID, Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "second revoke must not match")

	n, err = repo.Revoke(ctx, stale.ID, Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "expired tokens cannot be revoked")

	got, err = repo.GetRefreshTokenByHash(ctx, "h-live")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	require.False(t, got.Eligible(Now))

	n, err = repo.RevokeAllForUser(ctx, f.Admin.ID, Now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "only the second token was still live")

	n, err = repo.DeleteExpired(ctx, Now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = repo.GetRefreshTokenByHash(ctx, "h-stale")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testInviteCodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	repo := s.InviteCodes()

	valid := domain.InviteCode{Code: "ABC12345", OrgID: f.Org.ID, Role: domain.RoleUser, ExpiresAt: Now.Add(time.Hour), CreatedBy: f.Admin.ID, CreatedAt: Now}
	expired := domain.InviteCode{Code: "OLD00001", OrgID: f.Org.ID, Role: domain.RoleUser, ExpiresAt: Now.Add(-time.Second), CreatedBy: f.Admin.ID, CreatedAt: Now.Add(-2 * time.Hour)}
	require.NoError(t, repo.CreateInviteCode(ctx, valid))
	require.NoError(t, repo.CreateInviteCode(ctx, expired))
	require.ErrorIs(t, repo.CreateInviteCode(ctx, valid), store.ErrAlreadyExists)

	n, err := repo.MarkConsumed(ctx, "OLD00001", "someone", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "expired code must not be consumable")

	n, err = repo.MarkConsumed(ctx, "NOPE0000", "someone", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = repo.MarkConsumed(ctx, "ABC12345", "user-1", Now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := repo.GetInviteCode(ctx, "ABC12345")
	require.NoError(t, err)
	require.True(t, got.Used)
	require.Equal(t, "user-1", *got.UsedBy)
	require.True(t, Now.Equal(*got.UsedAt))

	n, err = repo.MarkConsumed(ctx, "ABC12345", "user-2", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	list, err := repo.ListInviteCodes(ctx, f.Org.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "ABC12345", list[0].Code, "newest first")

	n, err = repo.DeleteExpired(ctx, Now.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "consumed codes are kept")
	_, err = repo.GetInviteCode(ctx, "ABC12345")
	require.NoError(t, err)
}

func testInviteExactlyOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	require.NoError(t, s.InviteCodes().CreateInviteCode(ctx, domain.InviteCode{
		Code: "RACE0001", OrgID: f.Org.ID, Role: domain.RoleUser,
		ExpiresAt: Now.Add(time.Hour), CreatedBy: f.Admin.ID, CreatedAt: Now,
	}))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int64
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.InviteCodes().MarkConsumed(ctx, "RACE0001", idx.New().String(), Now)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			mu.Lock()
			winners += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, winners)
}

func testFormTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	repo := s.FormTokens()

	open := newFormToken(f, "tok-open", nil, nil)
	capped := newFormToken(f, "tok-capped", ptr(Now.Add(time.Hour)), ptr(2))
	expired := newFormToken(f, "tok-expired", ptr(Now.Add(-time.Second)), nil)
	for _, ft := range []domain.FormAccessToken{open, capped, expired} {
		require.NoError(t, repo.CreateFormToken(ctx, ft))
	}

	got, err := repo.GetFormTokenByToken(ctx, "tok-capped")
	require.NoError(t, err)
	require.Equal(t, capped.ID, got.ID)
	require.Equal(t, 2, *got.MaxUses)
	require.True(t, got.Active)

	for i := range 2 {
		n, err := repo.IncrementUse(ctx, "tok-capped", Now)
		require.NoError(t, err)
		require.EqualValues(t, 1, n, "use %d", i+1)
	}
	n, err := repo.IncrementUse(ctx, "tok-capped", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "cap reached")

	n, err = repo.IncrementUse(ctx, "tok-expired", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = repo.RecordAccess(ctx, "tok-open", Now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = repo.RecordAccess(ctx, "tok-capped", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "exhausted tokens are not readable")

	got, err = repo.GetFormTokenByID(ctx, open.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.AccessCount)
	require.Equal(t, 0, got.UseCount)
	require.True(t, Now.Equal(*got.LastAccessedAt))

	n, err = repo.Deactivate(ctx, "other-org", open.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "deactivation is scoped to the owning org")

	n, err = repo.Deactivate(ctx, f.Org.ID, open.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = repo.Deactivate(ctx, f.Org.ID, open.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = repo.IncrementUse(ctx, "tok-open", Now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "inactive tokens cannot be used")

	list, err := repo.ListFormTokens(ctx, f.Org.ID, f.Form.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	_, err = repo.GetFormTokenByToken(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testFormTokenCap(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	require.NoError(t, s.FormTokens().CreateFormToken(ctx, newFormToken(f, "tok-race", nil, ptr(5))))

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int64
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.FormTokens().IncrementUse(ctx, "tok-race", Now)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			wins += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.EqualValues(t, 5, wins)

	got, err := s.FormTokens().GetFormTokenByToken(ctx, "tok-race")
	require.NoError(t, err)
	require.Equal(t, 5, got.UseCount)
}

func testSubmissions(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	ft := newFormToken(f, "tok-sub", nil, nil)
	require.NoError(t, s.FormTokens().CreateFormToken(ctx, ft))

	for range 3 {
		require.NoError(t, s.Submissions().CreateSubmission(ctx, domain.FormSubmission{
			ID: idx.New().String(), FormTokenID: ft.ID, FormID: f.Form.ID, CompanyID: f.Company.ID,
			OrgID: f.Org.ID, Data: json.RawMessage(`{"tfn":"123"}`), IP: "203.0.113.1", CreatedAt: Now,
		}))
	}
	n, err := s.Submissions().CountByFormToken(ctx, ft.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	form, err := s.Forms().GetForm(ctx, f.Org.ID, f.Form.ID)
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"tfn","type":"text"}]`, string(form.Fields))

	_, err = s.Forms().GetCompany(ctx, "other-org", f.Company.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAudit(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	for i, action := range []domain.AuditAction{domain.ActionIssue, domain.ActionRedeem, domain.ActionRedemptionRejected} {
		e := domain.AuditEntry{
			ID: idx.New().String(), OrgID: f.Org.ID, Action: action,
			ResourceType: domain.ResourceInviteCode, ResourceID: "ABC12345",
			Outcome: domain.OutcomeSuccess, Timestamp: Now.Add(time.Duration(i) * time.Second),
		}
		if i == 0 {
			e.SubjectID = &f.Admin.ID
			e.Extra = map[string]any{"role": "user"}
		}
		require.NoError(t, s.AuditLog().AppendAudit(ctx, e))
	}

	entries, err := s.AuditLog().ListAudit(ctx, f.Org.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.ActionRedemptionRejected, entries[0].Action)
	require.Nil(t, entries[0].SubjectID)

	entries, err = s.AuditLog().ListAudit(ctx, f.Org.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, f.Admin.ID, *entries[2].SubjectID)
	require.Equal(t, "user", entries[2].Extra["role"])
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	require.NoError(t, s.InviteCodes().CreateInviteCode(ctx, domain.InviteCode{
		Code: "TXN00001", OrgID: f.Org.ID, Role: domain.RoleUser,
		ExpiresAt: Now.Add(time.Hour), CreatedBy: f.Admin.ID, CreatedAt: Now,
	}))

	errBoom := context.Canceled
	err := s.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.InviteCodes().MarkConsumed(ctx, "TXN00001", "user-x", Now)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := s.InviteCodes().GetInviteCode(ctx, "TXN00001")
	require.NoError(t, err)
	require.False(t, got.Used, "rolled back")

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.InviteCodes().MarkConsumed(ctx, "TXN00001", "user-y", Now)
		return err
	}))
	got, err = s.InviteCodes().GetInviteCode(ctx, "TXN00001")
	require.NoError(t, err)
	require.True(t, got.Used)

	require.NoError(t, s.Ping(ctx))
}
