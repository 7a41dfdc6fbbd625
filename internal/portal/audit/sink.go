package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
)

// Sink persists or forwards audit entries.
type Sink interface {
	Write(ctx context.Context, e domain.AuditEntry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e domain.AuditEntry) error

func (f SinkFunc) Write(ctx context.Context, e domain.AuditEntry) error { return f(ctx, e) }

// StoreSink appends entries to the audit_log table.
type StoreSink struct {
	Log store.AuditLog
}

func (s StoreSink) Write(ctx context.Context, e domain.AuditEntry) error {
	return s.Log.AppendAudit(ctx, e)
}

// LogSink writes one structured log line per entry.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ctx context.Context, e domain.AuditEntry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"audit_id", e.ID,
		"action", string(e.Action),
		"outcome", string(e.Outcome),
		"resource_type", e.ResourceType,
		"resource_id", e.ResourceID,
		"org", e.OrgID,
	}
	if e.SubjectID != nil {
		attrs = append(attrs, "sub", *e.SubjectID)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	if e.IP != "" {
		attrs = append(attrs, "ip", e.IP)
	}

	level := slog.LevelInfo
	if e.Outcome == domain.OutcomeRejected {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "audit", attrs...)
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e domain.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
