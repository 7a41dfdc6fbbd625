package service_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/internal/portal/store/storetest"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

const strongPassword = "Sup3r$ecret!"

func TestMain(m *testing.M) {
	cryptox.SetPepper("service-test-pepper")
	os.Exit(m.Run())
}

type recorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recorder) Emit(_ context.Context, e domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) count(action domain.AuditAction, outcome domain.AuditOutcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Action == action && e.Outcome == outcome {
			n++
		}
	}
	return n
}

type harness struct {
	store   store.Store
	clock   *clockx.FakeClock
	audit   *recorder
	tracker *activity.MemoryTracker
	lockout *service.Lockout
	issuer  *service.Issuer
	guard   *service.Guard
	auth    *service.AuthService
	forms   *service.FormService
	admin   *service.AdminService
	fx      storetest.Fixture
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := clockx.Fake(storetest.Now)
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		VerifyOptions: jwtx.VerifyOptions{Issuer: "portal-test", Now: clock.Now},
	})
	require.NoError(t, err)

	h := &harness{
		store:   st,
		clock:   clock,
		audit:   &recorder{},
		tracker: activity.NewMemoryTracker(activity.Config{}, clock),
		lockout: service.NewLockout(service.LockoutConfig{}, clock),
	}
	h.issuer = &service.Issuer{
		Store:       st,
		KeyManager:  km,
		Clock:       clock,
		Audit:       h.audit,
		TokenIssuer: "portal-test",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  service.DefaultRefreshTTL,
		InviteTTL:   service.DefaultInviteTTL,
		Rotation:    true,
	}
	h.guard = &service.Guard{Clock: clock, Audit: h.audit}
	h.auth = &service.AuthService{
		Store:    st,
		Issuer:   h.issuer,
		Guard:    h.guard,
		Lockout:  h.lockout,
		Activity: h.tracker,
		Clock:    clock,
		Audit:    h.audit,
	}
	h.forms = &service.FormService{Store: st, Issuer: h.issuer, Guard: h.guard, Clock: clock, Audit: h.audit}
	h.admin = &service.AdminService{Store: st, Issuer: h.issuer}
	h.fx = storetest.Seed(t, st)
	return h
}

func (h *harness) invite(t *testing.T, code string, expiresAt time.Time) domain.InviteCode {
	t.Helper()
	inv := domain.InviteCode{
		Code:      code,
		OrgID:     h.fx.Org.ID,
		Role:      domain.RoleUser,
		ExpiresAt: expiresAt,
		CreatedBy: h.fx.Admin.ID,
		CreatedAt: h.clock.Now(),
	}
	require.NoError(t, h.store.InviteCodes().CreateInviteCode(context.Background(), inv))
	return inv
}

func (h *harness) signupAdmin(t *testing.T, email string) domain.TokenPair {
	t.Helper()
	pair, err := h.auth.SignupAdmin(context.Background(), service.SignupAdminRequest{
		Email:            email,
		Password:         strongPassword,
		Name:             "Grace",
		OrganizationName: "Hopper Super",
	})
	require.NoError(t, err)
	return pair
}
