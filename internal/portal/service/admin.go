package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

const (
	DefaultAuditListLimit = 100
	MaxAuditListLimit     = 1000
)

// AdminService is the organization admin's view of invites, members and
// the audit trail.
type AdminService struct {
	Store    store.Store
	Issuer   *Issuer
	Activity activity.Tracker
	Clock    clockx.Clock
	Audit    Auditor
}

func (s *AdminService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *AdminService) IssueInviteCode(ctx context.Context, orgID, role string, ttl time.Duration, createdBy string) (domain.InviteCode, error) {
	return s.Issuer.IssueInviteCode(ctx, orgID, role, ttl, createdBy)
}

func (s *AdminService) ListInviteCodes(ctx context.Context, orgID string) ([]domain.InviteCode, error) {
	return s.Store.InviteCodes().ListInviteCodes(ctx, orgID)
}

// ListAudit returns orgID's newest entries. limit is clamped to
// [1, MaxAuditListLimit]; zero means DefaultAuditListLimit.
func (s *AdminService) ListAudit(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditListLimit
	case limit > MaxAuditListLimit:
		limit = MaxAuditListLimit
	}
	return s.Store.AuditLog().ListAudit(ctx, orgID, limit)
}

// RemoveMember deactivates a member of orgID and revokes every refresh
// token they hold. Admins cannot remove themselves or another admin.
// Removing a member who is already inactive changes nothing.
func (s *AdminService) RemoveMember(ctx context.Context, orgID, memberID, actor string) (domain.User, error) {
	if memberID == actor {
		return domain.User{}, fmt.Errorf("%w: cannot remove yourself", domain.ErrInvalidInput)
	}

	u, err := s.Store.Users().GetUserByID(ctx, memberID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u.OrgID != orgID) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if u.Role == domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("%w: admins cannot remove other admins", domain.ErrForbidden)
	}
	if !u.Active {
		return u, nil
	}

	now := s.now()
	if err := s.Store.Users().SetActive(ctx, u.ID, false, now); err != nil {
		return domain.User{}, fmt.Errorf("deactivate member: %w", err)
	}
	u.Active = false
	u.UpdatedAt = now

	revoked, err := s.Issuer.RevokeAllForUser(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	if s.Activity != nil {
		if err := s.Activity.End(ctx, u.ID); err != nil {
			slogx.FromContext(ctx).Warn("failed to clear session activity", slog.Any("error", err))
		}
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(actor),
		OrgID:        orgID,
		Action:       domain.ActionRevoke,
		ResourceType: domain.ResourceUser,
		ResourceID:   u.ID,
		Extra:        map[string]any{"revoked_refresh_tokens": revoked},
		Timestamp:    now,
	})
	slogx.FromContext(ctx).Info("member removed",
		slog.String("user_id", u.ID),
		slog.Int64("revoked", revoked),
	)
	return u, nil
}
