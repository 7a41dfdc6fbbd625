// Package metrics exposes the portal's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	credentialEvents   *prometheus.CounterVec
	refreshRotations   *prometheus.CounterVec
	auditDropped       prometheus.Counter
	activityExpired    prometheus.Counter
	rateLimited        *prometheus.CounterVec
	lockouts           prometheus.Counter
	housekeepingPurged *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		credentialEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "credential_events_total",
			Help:      "Credential lifecycle transitions by credential kind, action and outcome.",
		}, []string{"kind", "action", "outcome"}),
		refreshRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "refresh_rotations_total",
			Help:      "Refresh token exchanges by result.",
		}, []string{"result"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the dispatcher queue was full.",
		}),
		activityExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "session_idle_expirations_total",
			Help:      "Sessions ended by the server-side idle timeout.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit profile.",
		}, []string{"profile"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failed logins.",
		}),
		housekeepingPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "housekeeping_purged_total",
			Help:      "Rows or records removed by housekeeping, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.credentialEvents,
		m.refreshRotations,
		m.auditDropped,
		m.activityExpired,
		m.rateLimited,
		m.lockouts,
		m.housekeepingPurged,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// The recorders below are nil-safe so services can run without metrics.

func (m *Metrics) CredentialEvent(kind, action, outcome string) {
	if m == nil {
		return
	}
	m.credentialEvents.WithLabelValues(kind, action, outcome).Inc()
}

func (m *Metrics) RefreshRotation(result string) {
	if m == nil {
		return
	}
	m.refreshRotations.WithLabelValues(result).Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.activityExpired.Inc()
}

func (m *Metrics) RateLimited(profile string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(profile).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) Purged(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.housekeepingPurged.WithLabelValues(kind).Add(float64(n))
}
