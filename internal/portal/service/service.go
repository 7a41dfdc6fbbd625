// Package service holds the credential lifecycle: the consumption guard,
// the issuer, the authentication flows, public form access and
// housekeeping. It is the only layer that writes credentials.
package service

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

// Auditor receives lifecycle entries. Emit must not block the caller;
// audit.Dispatcher is the production implementation.
type Auditor interface {
	Emit(ctx context.Context, e domain.AuditEntry)
}

// AuditorFunc adapts a function to Auditor.
type AuditorFunc func(ctx context.Context, e domain.AuditEntry)

func (f AuditorFunc) Emit(ctx context.Context, e domain.AuditEntry) { f(ctx, e) }

type clientMetaKey struct{}

// WithClientMeta attaches the caller's ip and user agent so audit entries
// emitted further down carry them.
func WithClientMeta(ctx context.Context, meta domain.ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey{}, meta)
}

// ClientMetaFromContext returns the metadata set by WithClientMeta.
func ClientMetaFromContext(ctx context.Context) domain.ClientMeta {
	meta, _ := ctx.Value(clientMetaKey{}).(domain.ClientMeta)
	return meta
}

func emit(ctx context.Context, a Auditor, e domain.AuditEntry) {
	if a == nil {
		return
	}
	meta := ClientMetaFromContext(ctx)
	if e.IP == "" {
		e.IP = meta.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.UserAgent
	}
	if e.Outcome == "" {
		e.Outcome = domain.OutcomeSuccess
	}
	a.Emit(ctx, e)
}

func ptr[T any](v T) *T { return &v }

// reason renders err for the audit reason column.
func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
