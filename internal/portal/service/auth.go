package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// AuthService runs login, signup, refresh and logout on top of the Issuer
// and the Guard, and keeps the server-side activity tracker in step.
type AuthService struct {
	Store    store.Store
	Issuer   *Issuer
	Guard    *Guard
	Lockout  *Lockout
	Activity activity.Tracker
	Clock    clockx.Clock
	Audit    Auditor
	Metrics  *metrics.Metrics
}

type SignupAdminRequest struct {
	Email            string
	Password         string
	Name             string
	OrganizationName string
}

type SignupUserRequest struct {
	Email      string
	Password   string
	Name       string
	InviteCode string
}

func (s *AuthService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeInviteCode upper-cases and trims a typed invite code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Login checks email and password and starts a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)
	email = NormalizeEmail(email)
	now := s.now()

	if s.Lockout != nil {
		if err := s.Lockout.Check(email); err != nil {
			log.Info("login refused, account locked", slog.String("email", email))
			return domain.TokenPair{}, err
		}
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.TokenPair{}, s.loginFailed(ctx, email, "", "", "unknown email")
	case err != nil:
		return domain.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return domain.TokenPair{}, s.loginFailed(ctx, email, u.ID, u.OrgID, "wrong password")
	}
	if !u.Active {
		emit(ctx, s.Audit, domain.AuditEntry{
			SubjectID:    ptr(u.ID),
			OrgID:        u.OrgID,
			Action:       domain.ActionLoginFailed,
			ResourceType: domain.ResourceUser,
			ResourceID:   u.ID,
			Outcome:      domain.OutcomeRejected,
			Reason:       domain.ErrInactiveUser.Error(),
			Timestamp:    now,
		})
		return domain.TokenPair{}, domain.ErrInactiveUser
	}

	if s.Lockout != nil {
		s.Lockout.Reset(email)
	}
	if err := s.Store.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
		log.Warn("failed to record last login", slog.String("user_id", u.ID), slog.Any("error", err))
	}

	pair, err := s.Issuer.IssueAccessAndRefresh(ctx, s.Store.RefreshTokens(), domain.SubjectOf(u))
	if err != nil {
		return domain.TokenPair{}, err
	}
	s.beginSession(ctx, u.ID)

	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(u.ID),
		OrgID:        u.OrgID,
		Action:       domain.ActionLogin,
		ResourceType: domain.ResourceUser,
		ResourceID:   u.ID,
		Timestamp:    now,
	})
	log.Info("user logged in", slog.String("user_id", u.ID))
	return pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, userID, orgID, why string) error {
	now := s.now()
	e := domain.AuditEntry{
		OrgID:        orgID,
		Action:       domain.ActionLoginFailed,
		ResourceType: domain.ResourceUser,
		ResourceID:   email,
		Outcome:      domain.OutcomeRejected,
		Reason:       why,
		Timestamp:    now,
	}
	if userID != "" {
		e.SubjectID = ptr(userID)
	}
	emit(ctx, s.Audit, e)

	if s.Lockout != nil && s.Lockout.Fail(email) {
		slogx.FromContext(ctx).Warn("account locked after repeated failures", slog.String("email", email))
		e.Action = domain.ActionLockout
		e.Reason = "too many failed logins"
		emit(ctx, s.Audit, e)
		s.Metrics.Lockout()
	}
	return domain.ErrInvalidCredential
}

// SignupAdmin creates an organization with its first admin.
func (s *AuthService) SignupAdmin(ctx context.Context, req SignupAdminRequest) (domain.TokenPair, error) {
	email, hash, err := s.prepareSignup(req.Email, req.Password, req.Name)
	if err != nil {
		return domain.TokenPair{}, err
	}
	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: organization_name is required", domain.ErrInvalidInput)
	}

	now := s.now()
	org := domain.Organization{ID: idx.New().String(), Name: orgName, CreatedAt: now}
	user := domain.User{
		ID:           idx.New().String(),
		OrgID:        org.ID,
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
		LastLoginAt:  ptr(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := ensureEmailFree(ctx, tx.Users(), email); err != nil {
			return err
		}
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		if err := createUser(ctx, tx.Users(), user); err != nil {
			return err
		}
		var err error
		pair, err = s.Issuer.IssueAccessAndRefresh(ctx, tx.RefreshTokens(), domain.SubjectOf(user))
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.beginSession(ctx, user.ID)
	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(user.ID),
		OrgID:        org.ID,
		Action:       domain.ActionSignup,
		ResourceType: domain.ResourceUser,
		ResourceID:   user.ID,
		Extra:        map[string]any{"role": user.Role, "organization": org.Name},
		Timestamp:    now,
	})
	slogx.FromContext(ctx).Info("organization created",
		slog.String("org_id", org.ID),
		slog.String("user_id", user.ID),
	)
	return pair, nil
}

// SignupUser joins an organization through an invite code. The code is
// consumed in the same transaction that creates the user, so a failed
// signup never burns it.
func (s *AuthService) SignupUser(ctx context.Context, req SignupUserRequest) (domain.TokenPair, error) {
	email, hash, err := s.prepareSignup(req.Email, req.Password, req.Name)
	if err != nil {
		return domain.TokenPair{}, err
	}
	code := NormalizeInviteCode(req.InviteCode)
	if code == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: invite_code is required", domain.ErrInvalidInput)
	}

	now := s.now()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Active:       true,
		LastLoginAt:  ptr(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := ensureEmailFree(ctx, tx.Users(), email); err != nil {
			return err
		}
		inv, err := s.Guard.RedeemOnce(ctx, tx.InviteCodes(), code, user.ID)
		if err != nil {
			return err
		}
		user.OrgID = inv.OrgID
		user.Role = inv.Role

		if err := createUser(ctx, tx.Users(), user); err != nil {
			return err
		}
		pair, err = s.Issuer.IssueAccessAndRefresh(ctx, tx.RefreshTokens(), domain.SubjectOf(user))
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.beginSession(ctx, user.ID)
	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(user.ID),
		OrgID:        user.OrgID,
		Action:       domain.ActionRedeem,
		ResourceType: domain.ResourceInviteCode,
		ResourceID:   code,
		Timestamp:    now,
	})
	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(user.ID),
		OrgID:        user.OrgID,
		Action:       domain.ActionSignup,
		ResourceType: domain.ResourceUser,
		ResourceID:   user.ID,
		Extra:        map[string]any{"role": user.Role},
		Timestamp:    now,
	})
	return pair, nil
}

// Refresh exchanges a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.RefreshResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.RefreshResult{}, domain.RefreshRejection(domain.ErrInvalidCredential)
	}
	return s.Issuer.RotateRefresh(ctx, refreshToken)
}

// Logout revokes the refresh token and forgets the session's activity. It
// succeeds for unknown or already revoked tokens.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	userID, err := s.Issuer.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	if userID != "" && s.Activity != nil {
		if err := s.Activity.End(ctx, userID); err != nil {
			slogx.FromContext(ctx).Warn("failed to clear session activity", slog.Any("error", err))
		}
	}
	return nil
}

// ExpireIdleSession ends a session the activity tracker found idle. All of
// the subject's refresh tokens are revoked, so the client has to log in
// again.
func (s *AuthService) ExpireIdleSession(ctx context.Context, subject, orgID string) error {
	n, err := s.Issuer.RevokeAllForUser(ctx, subject)
	if err != nil {
		return err
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		SubjectID:    ptr(subject),
		OrgID:        orgID,
		Action:       domain.ActionIdleExpired,
		ResourceType: domain.ResourceSession,
		ResourceID:   subject,
		Extra:        map[string]any{"revoked_refresh_tokens": n},
		Timestamp:    s.now(),
	})
	s.Metrics.SessionExpired()
	slogx.FromContext(ctx).Info("session expired after inactivity",
		slog.String("user_id", subject),
		slog.Int64("revoked", n),
	)
	return nil
}

// Me returns the current user.
func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *AuthService) beginSession(ctx context.Context, userID string) {
	if s.Activity == nil {
		return
	}
	if err := s.Activity.Begin(ctx, userID); err != nil {
		slogx.FromContext(ctx).Warn("failed to start session activity", slog.Any("error", err))
	}
}

func (s *AuthService) prepareSignup(email, password, name string) (string, string, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return "", "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if err := cryptox.ValidatePasswordStrength(password); err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrWeakPassword, err)
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return email, hash, nil
}

func ensureEmailFree(ctx context.Context, users store.Users, email string) error {
	_, err := users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.ErrDuplicateEmail
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("lookup user: %w", err)
	}
}

func createUser(ctx context.Context, users store.Users, u domain.User) error {
	if err := users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
