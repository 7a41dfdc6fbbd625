package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// FormService serves public form links and the thin admin catalog they
// point at.
type FormService struct {
	Store  store.Store
	Issuer *Issuer
	Guard  *Guard
	Clock  clockx.Clock
	Audit  Auditor
}

// PublicForm is what an anonymous holder of a form link sees.
type PublicForm struct {
	Token   domain.FormAccessToken
	Form    domain.Form
	Company domain.Company
}

func (s *FormService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// Open resolves a public form link and counts the read. Unknown links
// fail with domain.ErrInvalidCredential; expired, exhausted and
// deactivated ones with an error matching
// domain.ErrExhaustedOrExpiredOrInactive.
func (s *FormService) Open(ctx context.Context, token string) (PublicForm, error) {
	t, err := s.Guard.RecordAccess(ctx, s.Store.FormTokens(), token)
	if err != nil {
		return PublicForm{}, err
	}

	form, err := s.Store.Forms().GetForm(ctx, t.OrgID, t.FormID)
	if err != nil {
		return PublicForm{}, fmt.Errorf("load form: %w", err)
	}
	company, err := s.Store.Forms().GetCompany(ctx, t.OrgID, t.CompanyID)
	if err != nil {
		return PublicForm{}, fmt.Errorf("load company: %w", err)
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		OrgID:        t.OrgID,
		Action:       domain.ActionFormAccess,
		ResourceType: domain.ResourceFormToken,
		ResourceID:   t.ID,
		Timestamp:    s.now(),
	})
	return PublicForm{Token: t, Form: form, Company: company}, nil
}

// Submit stores one submission through a form link. The use is spent in
// the same transaction as the insert.
func (s *FormService) Submit(ctx context.Context, token string, data json.RawMessage) (domain.FormSubmission, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return domain.FormSubmission{}, fmt.Errorf("%w: data must be a JSON object", domain.ErrInvalidInput)
	}

	meta := ClientMetaFromContext(ctx)
	now := s.now()

	var sub domain.FormSubmission
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		t, err := s.Guard.TryIncrementUse(ctx, tx.FormTokens(), token)
		if err != nil {
			return err
		}
		sub = domain.FormSubmission{
			ID:          idx.New().String(),
			FormTokenID: t.ID,
			FormID:      t.FormID,
			CompanyID:   t.CompanyID,
			OrgID:       t.OrgID,
			Data:        json.RawMessage(trimmed),
			IP:          meta.IP,
			UserAgent:   meta.UserAgent,
			CreatedAt:   now,
		}
		return tx.Submissions().CreateSubmission(ctx, sub)
	})
	if err != nil {
		return domain.FormSubmission{}, err
	}

	emit(ctx, s.Audit, domain.AuditEntry{
		OrgID:        sub.OrgID,
		Action:       domain.ActionFormSubmission,
		ResourceType: domain.ResourceFormToken,
		ResourceID:   sub.FormTokenID,
		Extra:        map[string]any{"submission_id": sub.ID, "form_id": sub.FormID},
		Timestamp:    now,
	})
	slogx.FromContext(ctx).Info("form submitted",
		slog.String("submission_id", sub.ID),
		slog.String("form_id", sub.FormID),
	)
	return sub, nil
}

// CreateForm adds a form to orgID's catalog. fields may be empty.
func (s *FormService) CreateForm(ctx context.Context, orgID, title, description string, fields json.RawMessage) (domain.Form, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Form{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if len(bytes.TrimSpace(fields)) == 0 {
		fields = json.RawMessage("[]")
	} else if !json.Valid(fields) {
		return domain.Form{}, fmt.Errorf("%w: fields must be JSON", domain.ErrInvalidInput)
	}

	f := domain.Form{
		ID:          idx.New().String(),
		OrgID:       orgID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Fields:      fields,
		CreatedAt:   s.now(),
	}
	if err := s.Store.Forms().CreateForm(ctx, f); err != nil {
		return domain.Form{}, fmt.Errorf("create form: %w", err)
	}
	return f, nil
}

func (s *FormService) CreateCompany(ctx context.Context, orgID, name string) (domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Company{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	c := domain.Company{
		ID:        idx.New().String(),
		OrgID:     orgID,
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.Store.Forms().CreateCompany(ctx, c); err != nil {
		return domain.Company{}, fmt.Errorf("create company: %w", err)
	}
	return c, nil
}

// IssueToken mints a form link. ttl nil means no expiry.
func (s *FormService) IssueToken(ctx context.Context, orgID, formID, companyID string, ttl *time.Duration, maxUses *int, createdBy string) (domain.FormAccessToken, error) {
	return s.Issuer.IssueFormToken(ctx, orgID, formID, companyID, ttl, maxUses, createdBy)
}

func (s *FormService) ListTokens(ctx context.Context, orgID, formID string) ([]domain.FormAccessToken, error) {
	if _, err := s.Store.Forms().GetForm(ctx, orgID, formID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s.Store.FormTokens().ListFormTokens(ctx, orgID, formID)
}

// Deactivate switches a form link off for good. Deactivating twice is
// not an error; a token of another organization is not found.
func (s *FormService) Deactivate(ctx context.Context, orgID, id, actor string) (domain.FormAccessToken, error) {
	t, err := s.Store.FormTokens().GetFormTokenByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && t.OrgID != orgID) {
		return domain.FormAccessToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FormAccessToken{}, err
	}

	n, err := s.Store.FormTokens().Deactivate(ctx, orgID, id)
	if err != nil {
		return domain.FormAccessToken{}, fmt.Errorf("deactivate form token: %w", err)
	}
	t.Active = false
	if n == 1 {
		emit(ctx, s.Audit, domain.AuditEntry{
			SubjectID:    ptr(actor),
			OrgID:        orgID,
			Action:       domain.ActionDeactivate,
			ResourceType: domain.ResourceFormToken,
			ResourceID:   id,
			Timestamp:    s.now(),
		})
	}
	return t, nil
}
