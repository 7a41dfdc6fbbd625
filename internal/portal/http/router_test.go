package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/audit"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	porthttp "github.com/aussiebroadwan/portal/internal/portal/http"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/portalsdk"
)

const strongPassword = "Sup3r$ecret!"

func TestMain(m *testing.M) {
	cryptox.SetPepper("http-test-pepper")
	os.Exit(m.Run())
}

type server struct {
	t      *testing.T
	router *porthttp.Router
	store  *sqlite.Store
	clock  *clockx.FakeClock
	ipSeq  atomic.Int32
}

func newServer(t *testing.T) *server {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := clockx.Fake(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		VerifyOptions: jwtx.VerifyOptions{Issuer: "portal-test", Now: clock.Now},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	disp := audit.NewDispatcher(audit.Config{Logger: logger}, audit.StoreSink{Log: st.AuditLog()})
	t.Cleanup(func() { _ = disp.Close(context.Background()) })

	m := metrics.New()
	tracker := activity.NewMemoryTracker(activity.Config{IdleTimeout: 15 * time.Minute}, clock)
	issuer := &service.Issuer{
		Store:       st,
		KeyManager:  km,
		Clock:       clock,
		Audit:       disp,
		Metrics:     m,
		TokenIssuer: "portal-test",
		AccessTTL:   time.Hour,
		Rotation:    true,
	}
	guard := &service.Guard{Clock: clock, Audit: disp, Metrics: m}

	r := porthttp.NewRouter(km.KeySet(), "test", st, logger)
	r.Clock = clock
	r.Issuer = issuer
	r.Activity = tracker
	r.Metrics = m
	r.PublicBaseURL = "https://portal.example"
	r.AuthService = &service.AuthService{
		Store:    st,
		Issuer:   issuer,
		Guard:    guard,
		Lockout:  service.NewLockout(service.LockoutConfig{}, clock),
		Activity: tracker,
		Clock:    clock,
		Audit:    disp,
		Metrics:  m,
	}
	r.FormService = &service.FormService{Store: st, Issuer: issuer, Guard: guard, Clock: clock, Audit: disp}
	r.Admin = &service.AdminService{Store: st, Issuer: issuer, Activity: tracker, Clock: clock, Audit: disp}
	r.ApplyRoutes()

	return &server{t: t, router: r, store: st, clock: clock}
}

type request struct {
	method string
	path   string
	body   any
	token  string
	ip     string
}

func (s *server) do(req request, out any) *httptest.ResponseRecorder {
	s.t.Helper()

	var body io.Reader = http.NoBody
	if req.body != nil {
		b, err := json.Marshal(req.body)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	r.Header.Set("Content-Type", "application/json")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	ip := req.ip
	if ip == "" {
		n := s.ipSeq.Add(1)
		ip = fmt.Sprintf("10.0.%d.%d", n/250, n%250+1)
	}
	r.Header.Set("X-Forwarded-For", ip)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func (s *server) signupAdmin(email string) portalsdk.TokenResponse {
	s.t.Helper()
	var tok portalsdk.TokenResponse
	w := s.do(request{method: "POST", path: "/auth/signup/admin", body: portalsdk.SignupAdminRequest{
		Email: email, Password: strongPassword, Name: "Grace", OrganizationName: "Hopper Super",
	}}, &tok)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return tok
}

func TestSignupAndMe(t *testing.T) {
	s := newServer(t)
	tok := s.signupAdmin("grace@hopper.test")
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)
	assert.Equal(t, int(service.DefaultRefreshTTL.Seconds()), tok.RefreshExpiresIn)

	var me portalsdk.MeResponse
	w := s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, &me)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "grace@hopper.test", me.Email)
	assert.Equal(t, "admin", me.Role)

	var e portalsdk.ErrorResponse
	w = s.do(request{method: "GET", path: "/me"}, &e)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, portalsdk.CodeInvalidToken, e.Error)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	w = s.do(request{method: "POST", path: "/auth/signup/admin", body: portalsdk.SignupAdminRequest{
		Email: "GRACE@hopper.test", Password: strongPassword, Name: "G", OrganizationName: "Other",
	}}, &e)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, portalsdk.CodeDuplicateEmail, e.Error)

	w = s.do(request{method: "POST", path: "/auth/signup/admin", body: portalsdk.SignupAdminRequest{
		Email: "weak@hopper.test", Password: "short", Name: "W", OrganizationName: "Weak",
	}}, &e)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, portalsdk.CodeInvalidRequest, e.Error)
}

func TestInviteFlow(t *testing.T) {
	s := newServer(t)
	admin := s.signupAdmin("grace@hopper.test")

	var inv portalsdk.InviteCodeResponse
	w := s.do(request{method: "POST", path: "/admin/invite-codes", token: admin.AccessToken,
		body: portalsdk.InviteCodeRequest{Role: "user"}}, &inv)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, inv.Code, 8)
	assert.Equal(t, s.clock.Now().Add(2*time.Hour).Unix(), inv.ExpiresAt.Unix())

	var user portalsdk.TokenResponse
	w = s.do(request{method: "POST", path: "/auth/signup/user", body: portalsdk.SignupUserRequest{
		Email: "ada@hopper.test", Password: strongPassword, Name: "Ada", InviteCode: strings.ToLower(inv.Code),
	}}, &user)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var e portalsdk.ErrorResponse
	w = s.do(request{method: "POST", path: "/auth/signup/user", body: portalsdk.SignupUserRequest{
		Email: "eve@hopper.test", Password: strongPassword, Name: "Eve", InviteCode: inv.Code,
	}}, &e)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, portalsdk.CodeInvalidInviteCode, e.Error)

	w = s.do(request{method: "GET", path: "/admin/invite-codes", token: user.AccessToken}, &e)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, portalsdk.CodeForbidden, e.Error)

	var list portalsdk.InviteCodeListResponse
	w = s.do(request{method: "GET", path: "/admin/invite-codes", token: admin.AccessToken}, &list)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, list.InviteCodes, 1)
	assert.True(t, list.InviteCodes[0].Used)
}

func TestRemoveMember(t *testing.T) {
	s := newServer(t)
	admin := s.signupAdmin("grace@hopper.test")

	invite := func(role string) string {
		var inv portalsdk.InviteCodeResponse
		w := s.do(request{method: "POST", path: "/admin/invite-codes", token: admin.AccessToken,
			body: portalsdk.InviteCodeRequest{Role: role}}, &inv)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return inv.Code
	}
	join := func(email, code string) (portalsdk.TokenResponse, portalsdk.MeResponse) {
		var tok portalsdk.TokenResponse
		w := s.do(request{method: "POST", path: "/auth/signup/user", body: portalsdk.SignupUserRequest{
			Email: email, Password: strongPassword, Name: "Member", InviteCode: code,
		}}, &tok)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var me portalsdk.MeResponse
		w = s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, &me)
		require.Equal(t, http.StatusOK, w.Code)
		return tok, me
	}

	var adminMe portalsdk.MeResponse
	s.do(request{method: "GET", path: "/me", token: admin.AccessToken}, &adminMe)
	member, memberMe := join("ada@hopper.test", invite("user"))
	_, coAdminMe := join("alan@hopper.test", invite("admin"))
	outsider := s.signupAdmin("linus@other.test")
	var outsiderMe portalsdk.MeResponse
	s.do(request{method: "GET", path: "/me", token: outsider.AccessToken}, &outsiderMe)

	remove := func(id string, e *portalsdk.ErrorResponse) int {
		return s.do(request{method: "DELETE", path: "/admin/members/" + id, token: admin.AccessToken}, e).Code
	}

	t.Run("rejections", func(t *testing.T) {
		var e portalsdk.ErrorResponse
		assert.Equal(t, http.StatusBadRequest, remove(adminMe.UserID, &e), "self")
		assert.Equal(t, portalsdk.CodeInvalidRequest, e.Error)
		assert.Equal(t, http.StatusForbidden, remove(coAdminMe.UserID, &e), "another admin")
		assert.Equal(t, portalsdk.CodeForbidden, e.Error)
		assert.Equal(t, http.StatusNotFound, remove(outsiderMe.UserID, &e), "other organization")
		assert.Equal(t, http.StatusNotFound, remove("01HZZZZZZZZZZZZZZZZZZZZZZZ", &e))

		w := s.do(request{method: "DELETE", path: "/admin/members/" + adminMe.UserID, token: member.AccessToken}, &e)
		assert.Equal(t, http.StatusForbidden, w.Code, "members cannot remove anyone")
	})

	t.Run("removed member loses their session", func(t *testing.T) {
		require.Equal(t, http.StatusOK, remove(memberMe.UserID, nil))

		var e portalsdk.ErrorResponse
		w := s.do(request{method: "POST", path: "/auth/refresh",
			body: portalsdk.RefreshRequest{RefreshToken: member.RefreshToken}}, &e)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, portalsdk.CodeInvalidToken, e.Error)

		w = s.do(request{method: "POST", path: "/auth/login",
			body: portalsdk.LoginRequest{Email: "ada@hopper.test", Password: strongPassword}}, &e)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		assert.Equal(t, http.StatusOK, remove(memberMe.UserID, nil), "idempotent")
	})
}

func TestLifetimeBounds(t *testing.T) {
	s := newServer(t)
	admin := s.signupAdmin("grace@hopper.test")

	var e portalsdk.ErrorResponse
	hours := 1e7
	w := s.do(request{method: "POST", path: "/admin/invite-codes", token: admin.AccessToken,
		body: portalsdk.InviteCodeRequest{Role: "user", TTLHours: &hours}}, &e)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, portalsdk.CodeInvalidRequest, e.Error)

	var form portalsdk.FormResponse
	s.do(request{method: "POST", path: "/admin/forms", token: admin.AccessToken,
		body: portalsdk.FormRequest{Title: "Enrolment"}}, &form)
	var company portalsdk.CompanyResponse
	s.do(request{method: "POST", path: "/admin/companies", token: admin.AccessToken,
		body: portalsdk.CompanyRequest{Name: "Widgets Pty"}}, &company)

	for _, days := range []int{36501, 250000} {
		w = s.do(request{method: "POST", path: "/admin/forms/" + form.ID + "/tokens", token: admin.AccessToken,
			body: portalsdk.FormTokenRequest{CompanyID: company.ID, ExpiresInDays: &days}}, &e)
		assert.Equal(t, http.StatusBadRequest, w.Code, "days=%d", days)
	}

	days := 36500
	var tok portalsdk.FormTokenResponse
	w = s.do(request{method: "POST", path: "/admin/forms/" + form.ID + "/tokens", token: admin.AccessToken,
		body: portalsdk.FormTokenRequest{CompanyID: company.ID, ExpiresInDays: &days}}, &tok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.After(s.clock.Now().AddDate(99, 0, 0)))
}

func TestPublicFormLifecycle(t *testing.T) {
	s := newServer(t)
	admin := s.signupAdmin("grace@hopper.test")

	var form portalsdk.FormResponse
	w := s.do(request{method: "POST", path: "/admin/forms", token: admin.AccessToken, body: portalsdk.FormRequest{
		Title: "Enrolment", Fields: json.RawMessage(`[{"name":"tfn"}]`),
	}}, &form)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var company portalsdk.CompanyResponse
	w = s.do(request{method: "POST", path: "/admin/companies", token: admin.AccessToken,
		body: portalsdk.CompanyRequest{Name: "Widgets Pty"}}, &company)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	maxUses := 1
	var tok portalsdk.FormTokenResponse
	w = s.do(request{method: "POST", path: "/admin/forms/" + form.ID + "/tokens", token: admin.AccessToken,
		body: portalsdk.FormTokenRequest{CompanyID: company.ID, MaxUses: &maxUses}}, &tok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "https://portal.example/forms/"+tok.Token, tok.URL)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, s.clock.Now().Add(30*24*time.Hour).Unix(), tok.ExpiresAt.Unix())

	var view portalsdk.PublicFormResponse
	w = s.do(request{method: "GET", path: "/public/forms/" + tok.Token}, &view)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Enrolment", view.Form.Title)
	assert.Equal(t, "Widgets Pty", view.Company.Name)
	require.NotNil(t, view.TokenInfo.Remaining)
	assert.Equal(t, 1, *view.TokenInfo.Remaining)

	var sub portalsdk.SubmitResponse
	w = s.do(request{method: "POST", path: "/public/forms/" + tok.Token + "/submit",
		body: portalsdk.SubmitRequest{Data: json.RawMessage(`{"tfn":"123"}`)}}, &sub)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, sub.SubmissionID)

	var e portalsdk.ErrorResponse
	w = s.do(request{method: "POST", path: "/public/forms/" + tok.Token + "/submit",
		body: portalsdk.SubmitRequest{Data: json.RawMessage(`{"tfn":"456"}`)}}, &e)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, portalsdk.CodeGone, e.Error)

	w = s.do(request{method: "GET", path: "/public/forms/unknown-token"}, &e)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var open portalsdk.FormTokenResponse
	w = s.do(request{method: "POST", path: "/admin/forms/" + form.ID + "/tokens", token: admin.AccessToken,
		body: portalsdk.FormTokenRequest{CompanyID: company.ID}}, &open)
	require.Equal(t, http.StatusCreated, w.Code)

	var deactivated portalsdk.FormTokenResponse
	w = s.do(request{method: "DELETE", path: "/admin/form-tokens/" + open.ID, token: admin.AccessToken}, &deactivated)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, deactivated.Active)

	w = s.do(request{method: "GET", path: "/public/forms/" + open.Token}, &e)
	assert.Equal(t, http.StatusGone, w.Code)

	var tokens portalsdk.FormTokenListResponse
	w = s.do(request{method: "GET", path: "/admin/forms/" + form.ID + "/tokens", token: admin.AccessToken}, &tokens)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, tokens.Tokens, 2)

	w = s.do(request{method: "POST", path: "/admin/forms/missing/tokens", token: admin.AccessToken,
		body: portalsdk.FormTokenRequest{CompanyID: company.ID}}, &e)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newServer(t)
	s.signupAdmin("grace@hopper.test")

	var e portalsdk.ErrorResponse
	for range 5 {
		w := s.do(request{method: "POST", path: "/auth/login",
			body: portalsdk.LoginRequest{Email: "grace@hopper.test", Password: "nope"}}, &e)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, portalsdk.CodeInvalidCredentials, e.Error)
	}

	w := s.do(request{method: "POST", path: "/auth/login",
		body: portalsdk.LoginRequest{Email: "grace@hopper.test", Password: strongPassword}}, &e)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, portalsdk.CodeLockedOut, e.Error)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
}

func TestLoginRateLimitedPerIP(t *testing.T) {
	s := newServer(t)

	var e portalsdk.ErrorResponse
	for i := range 5 {
		w := s.do(request{method: "POST", path: "/auth/login", ip: "198.51.100.7",
			body: portalsdk.LoginRequest{Email: fmt.Sprintf("u%d@x.test", i), Password: "nope"}}, &e)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := s.do(request{method: "POST", path: "/auth/login", ip: "198.51.100.7",
		body: portalsdk.LoginRequest{Email: "u9@x.test", Password: "nope"}}, &e)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, portalsdk.CodeRateLimited, e.Error)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newServer(t)
	tok := s.signupAdmin("grace@hopper.test")

	var res portalsdk.RefreshResponse
	w := s.do(request{method: "POST", path: "/auth/refresh",
		body: portalsdk.RefreshRequest{RefreshToken: tok.RefreshToken}}, &res)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, tok.RefreshToken, res.RefreshToken)

	var e portalsdk.ErrorResponse
	w = s.do(request{method: "POST", path: "/auth/refresh",
		body: portalsdk.RefreshRequest{RefreshToken: tok.RefreshToken}}, &e)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, portalsdk.CodeInvalidToken, e.Error)

	for range 2 {
		w = s.do(request{method: "POST", path: "/auth/logout",
			body: portalsdk.LogoutRequest{RefreshToken: res.RefreshToken}}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w = s.do(request{method: "POST", path: "/auth/refresh",
		body: portalsdk.RefreshRequest{RefreshToken: res.RefreshToken}}, &e)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(request{method: "POST", path: "/auth/refresh", body: map[string]any{"refresh_token": 42}}, &e)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdleSessionExpires(t *testing.T) {
	s := newServer(t)
	tok := s.signupAdmin("grace@hopper.test")

	w := s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	s.clock.Advance(10 * time.Minute)
	w = s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, nil)
	require.Equal(t, http.StatusOK, w.Code, "activity extends the session")

	s.clock.Advance(15*time.Minute + time.Second)
	var e portalsdk.ErrorResponse
	w = s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, &e)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, portalsdk.CodeSessionExpired, e.Error)

	w = s.do(request{method: "POST", path: "/auth/refresh",
		body: portalsdk.RefreshRequest{RefreshToken: tok.RefreshToken}}, &e)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "idle expiry revokes refresh tokens")

	var fresh portalsdk.TokenResponse
	w = s.do(request{method: "POST", path: "/auth/login",
		body: portalsdk.LoginRequest{Email: "grace@hopper.test", Password: strongPassword}}, &fresh)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(request{method: "GET", path: "/me", token: fresh.AccessToken}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdleExpiryHappensOnce(t *testing.T) {
	s := newServer(t)
	tok := s.signupAdmin("grace@hopper.test")

	var me portalsdk.MeResponse
	w := s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, &me)
	require.Equal(t, http.StatusOK, w.Code)

	s.clock.Advance(16 * time.Minute)
	for range 4 {
		w = s.do(request{method: "GET", path: "/me", token: tok.AccessToken}, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	// A later login is queued behind every idle_expired entry.
	w = s.do(request{method: "POST", path: "/auth/login",
		body: portalsdk.LoginRequest{Email: "grace@hopper.test", Password: strongPassword}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var expired int
	require.Eventually(t, func() bool {
		entries, err := s.store.AuditLog().ListAudit(context.Background(), me.OrgID, 100)
		if err != nil {
			return false
		}
		expired = 0
		sawLogin := false
		for _, e := range entries {
			switch e.Action {
			case domain.ActionIdleExpired:
				expired++
			case domain.ActionLogin:
				sawLogin = true
			}
		}
		return sawLogin
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, expired)

	w = s.do(request{method: "GET", path: "/metrics"}, nil)
	assert.Contains(t, w.Body.String(), "portal_session_idle_expirations_total 1\n")
}

func TestAuditEndpoint(t *testing.T) {
	s := newServer(t)
	admin := s.signupAdmin("grace@hopper.test")

	require.Eventually(t, func() bool {
		var list portalsdk.AuditListResponse
		w := s.do(request{method: "GET", path: "/admin/audit?limit=10", token: admin.AccessToken}, &list)
		if w.Code != http.StatusOK {
			return false
		}
		for _, e := range list.Entries {
			if e.Action == "signup" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	w := s.do(request{method: "GET", path: "/admin/audit?limit=zero", token: admin.AccessToken}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	s := newServer(t)

	var h portalsdk.HealthResponse
	w := s.do(request{method: "GET", path: "/livez"}, &h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", h.Status)

	w = s.do(request{method: "GET", path: "/readyz"}, &h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", h.Checks["database"])

	s.signupAdmin("grace@hopper.test")
	w = s.do(request{method: "GET", path: "/metrics"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portal_credential_events_total")
}

func TestSecurityHeadersOnEveryRoute(t *testing.T) {
	s := newServer(t)

	for _, tc := range []struct {
		path string
		code int
	}{
		{"/livez", http.StatusOK},
		{"/me", http.StatusUnauthorized},
		{"/public/forms/not-a-token", http.StatusNotFound},
	} {
		t.Run(tc.path, func(t *testing.T) {
			w := s.do(request{method: "GET", path: tc.path}, nil)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
			assert.Equal(t, httpx.DefaultCSP, w.Header().Get("Content-Security-Policy"))
			assert.NotEmpty(t, w.Header().Get("Referrer-Policy"))
			assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
		})
	}
}

func TestSwaggerDocs(t *testing.T) {
	s := newServer(t)

	w := s.do(request{method: "GET", path: "/swagger/doc.json"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/admin/members/{id}"`)
	assert.Contains(t, w.Body.String(), `"/auth/refresh"`)
	assert.Contains(t, w.Body.String(), "BearerAuth")

	w = s.do(request{method: "GET", path: "/swagger/index.html"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "'unsafe-inline'")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
