package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

const (
	DefaultRefreshTTL    = 7 * 24 * time.Hour
	DefaultInviteTTL     = 2 * time.Hour
	DefaultFormTokenTTL  = 30 * 24 * time.Hour
	InviteCodeLength     = 8
	inviteCodeMaxRetries = 5
)

// Issuer is the only writer of credentials and the only minter of access
// tokens.
type Issuer struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager
	Clock      clockx.Clock
	Audit      Auditor
	Metrics    *metrics.Metrics

	// TokenIssuer is the iss claim; Audience the aud claim.
	TokenIssuer string
	Audience    []string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	InviteTTL  time.Duration

	// Rotation replaces the refresh token on every exchange. When
	// false the presented token stays valid until it expires.
	Rotation bool
}

func (s *Issuer) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Issuer) accessTTL() time.Duration {
	if s.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.AccessTTL
}

func (s *Issuer) refreshTTL() time.Duration {
	if s.RefreshTTL <= 0 {
		return DefaultRefreshTTL
	}
	return s.RefreshTTL
}

// IssueAccessAndRefresh signs an access token for sub and persists a new
// refresh token through q, which may belong to a transaction.
func (s *Issuer) IssueAccessAndRefresh(ctx context.Context, q store.RefreshTokens, sub domain.Subject) (domain.TokenPair, error) {
	now := s.now()

	access, err := s.signAccess(sub, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.createRefresh(ctx, q, sub.UserID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(sub.UserID),
		OrgID:        sub.OrgID,
		Action:       domain.ActionIssue,
		ResourceType: domain.ResourceRefreshToken,
		ResourceID:   refresh.id,
		Timestamp:    now,
	})
	s.Metrics.CredentialEvent(domain.ResourceRefreshToken, string(domain.ActionIssue), string(domain.OutcomeSuccess))

	return domain.TokenPair{Access: access, Refresh: refresh.IssuedRefreshToken}, nil
}

// RotateRefresh exchanges a refresh token for a new access token, and a
// new refresh token when rotation is on. The lookup, the revocation of
// the old token and the insert of the new one share one transaction, and
// the revocation is conditional: of two concurrent exchanges of the same
// token only one can win.
//
// Rejections match domain.ErrInvalidOrRevokedRefreshToken.
func (s *Issuer) RotateRefresh(ctx context.Context, oldRefresh string) (domain.RefreshResult, error) {
	now := s.now()
	fp := cryptox.FingerprintToken(oldRefresh)

	var (
		result domain.RefreshResult
		rt     domain.RefreshToken
		user   domain.User
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rt, err = tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.RefreshRejection(domain.ErrInvalidCredential)
			}
			return err
		}
		if rt.RevokedAt != nil {
			return domain.RefreshRejection(domain.ErrRevoked)
		}
		if !now.Before(rt.ExpiresAt) {
			return domain.RefreshRejection(domain.ErrExpiredCredential)
		}

		user, err = tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.RefreshRejection(domain.ErrRevoked)
			}
			return err
		}
		if !user.Active {
			return domain.RefreshRejection(domain.ErrRevoked)
		}

		if s.Rotation {
			n, err := tx.RefreshTokens().Revoke(ctx, rt.ID, now)
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.RefreshRejection(domain.ErrRevoked)
			}
			next, err := s.createRefresh(ctx, tx.RefreshTokens(), user.ID, now)
			if err != nil {
				return err
			}
			result.Refresh = &next.IssuedRefreshToken
		}

		result.Access, err = s.signAccess(domain.SubjectOf(user), now)
		return err
	})

	entry := domain.AuditEntry{
		OrgID:        user.OrgID,
		Action:       domain.ActionRotate,
		ResourceType: domain.ResourceRefreshToken,
		ResourceID:   rt.ID,
		Timestamp:    now,
	}
	if rt.UserID != "" {
		entry.SubjectID = ptr(rt.UserID)
	}

	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrRevokedRefreshToken) {
			entry.Outcome = domain.OutcomeRejected
			entry.Reason = reason(err)
			emit(ctx, s.Audit, entry)
			s.Metrics.RefreshRotation("rejected")
			slogx.FromContext(ctx).Info("refresh rejected", slog.String("reason", err.Error()))
		}
		return domain.RefreshResult{}, err
	}

	emit(ctx, s.Audit, entry)
	if result.Refresh != nil {
		s.Metrics.RefreshRotation("rotated")
	} else {
		s.Metrics.RefreshRotation("reused")
	}
	return result, nil
}

// Revoke revokes a refresh token. Unknown, expired and already revoked
// tokens are not an error. It returns the owning user id when the token
// was known.
func (s *Issuer) Revoke(ctx context.Context, refresh string) (string, error) {
	now := s.now()

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refresh))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}

	n, err := s.Store.RefreshTokens().Revoke(ctx, rt.ID, now)
	if err != nil {
		return "", fmt.Errorf("revoke refresh token: %w", err)
	}
	if n == 1 {
		var orgID string
		if u, err := s.Store.Users().GetUserByID(ctx, rt.UserID); err == nil {
			orgID = u.OrgID
		}
		emit(ctx, s.Audit, domain.AuditEntry{
			SubjectID:    ptr(rt.UserID),
			OrgID:        orgID,
			Action:       domain.ActionRevoke,
			ResourceType: domain.ResourceRefreshToken,
			ResourceID:   rt.ID,
			Timestamp:    now,
		})
		s.Metrics.CredentialEvent(domain.ResourceRefreshToken, string(domain.ActionRevoke), string(domain.OutcomeSuccess))
	}
	return rt.UserID, nil
}

// RevokeAllForUser revokes every live refresh token of userID.
func (s *Issuer) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.RefreshTokens().RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return n, nil
}

// IssueInviteCode mints a single-use code that admits one user into orgID
// with role. A ttl of zero uses InviteTTL.
func (s *Issuer) IssueInviteCode(ctx context.Context, orgID, role string, ttl time.Duration, createdBy string) (domain.InviteCode, error) {
	log := slogx.FromContext(ctx)

	if !domain.ValidRole(role) {
		return domain.InviteCode{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	if ttl < 0 {
		return domain.InviteCode{}, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	if ttl == 0 {
		ttl = s.InviteTTL
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}

	now := s.now()
	inv := domain.InviteCode{
		OrgID:     orgID,
		Role:      role,
		ExpiresAt: now.Add(ttl),
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		code, err := cryptox.GenerateCode(InviteCodeLength, cryptox.CodeAlphabet)
		if err != nil {
			return domain.InviteCode{}, err
		}
		inv.Code = code

		err = s.Store.InviteCodes().CreateInviteCode(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) || attempt == inviteCodeMaxRetries {
			log.Error("failed to create invite code", slog.Int("attempt", attempt), slog.Any("error", err))
			return domain.InviteCode{}, fmt.Errorf("create invite code: %w", err)
		}
		log.Warn("invite code collision, retrying", slog.Int("attempt", attempt))
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(createdBy),
		OrgID:        orgID,
		Action:       domain.ActionIssue,
		ResourceType: domain.ResourceInviteCode,
		ResourceID:   inv.Code,
		Extra:        map[string]any{"role": role, "expires_at": inv.ExpiresAt},
		Timestamp:    now,
	})
	s.Metrics.CredentialEvent(domain.ResourceInviteCode, string(domain.ActionIssue), string(domain.OutcomeSuccess))

	return inv, nil
}

// IssueFormToken mints a public form link for a form and company of orgID.
// A nil ttl never expires and a nil maxUses is uncapped.
func (s *Issuer) IssueFormToken(
	ctx context.Context,
	orgID, formID, companyID string,
	ttl *time.Duration,
	maxUses *int,
	createdBy string,
) (domain.FormAccessToken, error) {
	if ttl != nil && *ttl <= 0 {
		return domain.FormAccessToken{}, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	if maxUses != nil && *maxUses <= 0 {
		return domain.FormAccessToken{}, fmt.Errorf("%w: max_uses must be positive", domain.ErrInvalidInput)
	}

	if _, err := s.Store.Forms().GetForm(ctx, orgID, formID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.FormAccessToken{}, fmt.Errorf("form %s: %w", formID, domain.ErrNotFound)
		}
		return domain.FormAccessToken{}, err
	}
	if _, err := s.Store.Forms().GetCompany(ctx, orgID, companyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.FormAccessToken{}, fmt.Errorf("company %s: %w", companyID, domain.ErrNotFound)
		}
		return domain.FormAccessToken{}, err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.FormAccessToken{}, err
	}

	now := s.now()
	t := domain.FormAccessToken{
		ID:        idx.New().String(),
		Token:     token,
		OrgID:     orgID,
		FormID:    formID,
		CompanyID: companyID,
		MaxUses:   maxUses,
		Active:    true,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if ttl != nil {
		t.ExpiresAt = ptr(now.Add(*ttl))
	}

	if err := s.Store.FormTokens().CreateFormToken(ctx, t); err != nil {
		return domain.FormAccessToken{}, fmt.Errorf("create form token: %w", err)
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(createdBy),
		OrgID:        orgID,
		Action:       domain.ActionIssue,
		ResourceType: domain.ResourceFormToken,
		ResourceID:   t.ID,
		Extra:        map[string]any{"form_id": formID, "company_id": companyID},
		Timestamp:    now,
	})
	s.Metrics.CredentialEvent(domain.ResourceFormToken, string(domain.ActionIssue), string(domain.OutcomeSuccess))

	return t, nil
}

// Verify checks an access token presented as a bearer credential.
func (s *Issuer) Verify(_ context.Context, token string) (*jwtx.Claims, error) {
	claims, err := s.KeyManager.Verifier().Verify(token)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrExpired):
		return nil, fmt.Errorf("%w: %v", domain.ErrExpiredCredential, err)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
}

func (s *Issuer) signAccess(sub domain.Subject, now time.Time) (domain.AccessToken, error) {
	ttl := s.accessTTL()
	claims := jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  sub.UserID,
		OrgID:    sub.OrgID,
		Role:     sub.Role,
		Email:    sub.Email,
		Issuer:   s.TokenIssuer,
		Audience: s.Audience,
		TTL:      ttl,
		Now:      now,
	})

	token, err := s.KeyManager.Signer().Sign(claims)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return domain.AccessToken{
		Token:     token,
		ExpiresAt: now.Add(ttl),
		ExpiresIn: ttl,
	}, nil
}

type issuedRefresh struct {
	domain.IssuedRefreshToken
	id string
}

func (s *Issuer) createRefresh(ctx context.Context, q store.RefreshTokens, userID string, now time.Time) (issuedRefresh, error) {
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return issuedRefresh{}, err
	}

	ttl := s.refreshTTL()
	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(opaque),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := q.CreateRefreshToken(ctx, rt); err != nil {
		return issuedRefresh{}, fmt.Errorf("create refresh token: %w", err)
	}

	return issuedRefresh{
		IssuedRefreshToken: domain.IssuedRefreshToken{
			Token:     opaque,
			ExpiresAt: rt.ExpiresAt,
			ExpiresIn: ttl,
		},
		id: rt.ID,
	}, nil
}
