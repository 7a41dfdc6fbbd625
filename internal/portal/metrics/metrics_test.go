package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m := metrics.New()
	m.CredentialEvent("invite_code", "redeem", "success")
	m.CredentialEvent("invite_code", "redeem", "rejected")
	m.RefreshRotation("rotated")
	m.AuditDropped()
	m.SessionExpired()
	m.RateLimited("strict")
	m.Lockout()
	m.Purged("refresh_token", 3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	require.Contains(t, out, `portal_credential_events_total{action="redeem",kind="invite_code",outcome="rejected"} 1`)
	require.Contains(t, out, `portal_refresh_rotations_total{result="rotated"} 1`)
	require.Contains(t, out, `portal_audit_dropped_total 1`)
	require.Contains(t, out, `portal_session_idle_expirations_total 1`)
	require.Contains(t, out, `portal_housekeeping_purged_total{kind="refresh_token"} 3`)
	require.Contains(t, out, `go_goroutines`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.CredentialEvent("a", "b", "c")
		m.RefreshRotation("x")
		m.AuditDropped()
		m.SessionExpired()
		m.RateLimited("p")
		m.Lockout()
		m.Purged("k", 1)
	})
}
