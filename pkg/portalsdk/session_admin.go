package portalsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Me returns the caller's identity.
func (s *Session) Me(ctx context.Context) (MeResponse, error) {
	var out MeResponse
	err := s.Do(ctx, http.MethodGet, "/me", nil, &out)
	return out, err
}

// CreateInviteCode issues an invite code for the caller's organization.
func (s *Session) CreateInviteCode(ctx context.Context, req InviteCodeRequest) (InviteCodeResponse, error) {
	var out InviteCodeResponse
	err := s.Do(ctx, http.MethodPost, "/admin/invite-codes", req, &out)
	return out, err
}

func (s *Session) ListInviteCodes(ctx context.Context) ([]InviteCodeResponse, error) {
	var out InviteCodeListResponse
	err := s.Do(ctx, http.MethodGet, "/admin/invite-codes", nil, &out)
	return out.InviteCodes, err
}

func (s *Session) CreateForm(ctx context.Context, req FormRequest) (FormResponse, error) {
	var out FormResponse
	err := s.Do(ctx, http.MethodPost, "/admin/forms", req, &out)
	return out, err
}

func (s *Session) CreateCompany(ctx context.Context, req CompanyRequest) (CompanyResponse, error) {
	var out CompanyResponse
	err := s.Do(ctx, http.MethodPost, "/admin/companies", req, &out)
	return out, err
}

// CreateFormToken shares formID with a company. See FormTokenRequest for
// the expiry and usage cap defaults.
func (s *Session) CreateFormToken(ctx context.Context, formID string, req FormTokenRequest) (FormTokenResponse, error) {
	var out FormTokenResponse
	err := s.Do(ctx, http.MethodPost, "/admin/forms/"+url.PathEscape(formID)+"/tokens", req, &out)
	return out, err
}

func (s *Session) ListFormTokens(ctx context.Context, formID string) ([]FormTokenResponse, error) {
	var out FormTokenListResponse
	err := s.Do(ctx, http.MethodGet, "/admin/forms/"+url.PathEscape(formID)+"/tokens", nil, &out)
	return out.Tokens, err
}

// DeactivateFormToken is idempotent.
func (s *Session) DeactivateFormToken(ctx context.Context, id string) (FormTokenResponse, error) {
	var out FormTokenResponse
	err := s.Do(ctx, http.MethodDelete, "/admin/form-tokens/"+url.PathEscape(id), nil, &out)
	return out, err
}

// RemoveMember deactivates a member of the caller's organization and
// revokes their refresh tokens. Removing an inactive member succeeds.
func (s *Session) RemoveMember(ctx context.Context, userID string) error {
	return s.Do(ctx, http.MethodDelete, "/admin/members/"+url.PathEscape(userID), nil, nil)
}

// ListAudit returns the newest entries first. limit <= 0 takes the
// server default.
func (s *Session) ListAudit(ctx context.Context, limit int) ([]AuditEntryResponse, error) {
	path := "/admin/audit"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out AuditListResponse
	err := s.Do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}
