package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalsdk"
)

// Upper bounds on requested lifetimes, well inside time.Duration's range.
const (
	maxInviteTTLHours   = 24 * 365
	maxFormTokenTTLDays = 36500
)

// AdminHandler serves the /admin routes. Every route is scoped to the
// caller's organization.
type AdminHandler struct {
	Admin         *service.AdminService
	Forms         *service.FormService
	PublicBaseURL string
}

// HandleCreateInvite serves POST /admin/invite-codes.
//
//	@Summary		Create an invite code
//	@Description	Issue a single-use invite code for the caller's organization.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.InviteCodeRequest	true	"Invite"
//	@Success		201		{object}	portalsdk.InviteCodeResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/invite-codes [post].
func (h *AdminHandler) HandleCreateInvite(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	var req portalsdk.InviteCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	var ttl time.Duration
	if req.TTLHours != nil {
		if *req.TTLHours <= 0 || *req.TTLHours > maxInviteTTLHours {
			httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest,
				fmt.Sprintf("ttl_hours must be in (0, %d]", maxInviteTTLHours))
			return
		}
		ttl = time.Duration(*req.TTLHours * float64(time.Hour))
	}

	inv, err := h.Admin.IssueInviteCode(r.Context(), claims.OrgID, req.Role, ttl, claims.Subject)
	if err != nil {
		writeCommonError(w, r, err, "create invite code")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, inviteResponse(inv))
}

// HandleListInvites serves GET /admin/invite-codes.
//
//	@Summary		List invite codes
//	@Description	List the organization's invite codes, newest first.
//	@Tags			Admin
//	@Produce		json
//	@Success		200		{object}	portalsdk.InviteCodeListResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/invite-codes [get].
func (h *AdminHandler) HandleListInvites(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	codes, err := h.Admin.ListInviteCodes(r.Context(), claims.OrgID)
	if err != nil {
		writeCommonError(w, r, err, "list invite codes")
		return
	}

	out := portalsdk.InviteCodeListResponse{InviteCodes: make([]portalsdk.InviteCodeResponse, 0, len(codes))}
	for _, c := range codes {
		out.InviteCodes = append(out.InviteCodes, inviteResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleCreateForm serves POST /admin/forms.
//
//	@Summary		Create a form
//	@Description	Add a form to the organization's catalog.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.FormRequest	true	"Form"
//	@Success		201		{object}	portalsdk.FormResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/forms [post].
func (h *AdminHandler) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	var req portalsdk.FormRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	f, err := h.Forms.CreateForm(r.Context(), claims.OrgID, req.Title, req.Description, req.Fields)
	if err != nil {
		writeCommonError(w, r, err, "create form")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, formResponse(f))
}

// HandleCreateCompany serves POST /admin/companies.
//
//	@Summary		Create a company
//	@Description	Add a company that forms can be shared with.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.CompanyRequest	true	"Company"
//	@Success		201		{object}	portalsdk.CompanyResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/companies [post].
func (h *AdminHandler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	var req portalsdk.CompanyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	c, err := h.Forms.CreateCompany(r.Context(), claims.OrgID, req.Name)
	if err != nil {
		writeCommonError(w, r, err, "create company")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, companyResponse(c))
}

// HandleCreateFormToken serves POST /admin/forms/{id}/tokens.
//
//	@Summary		Share a form
//	@Description	Create a public link to a form for one company. Links expire after 30 days unless expires_in_days says otherwise; 0 never expires.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			id	path		string	true	"Form ID"
//	@Param			request	body		portalsdk.FormTokenRequest	true	"Link settings"
//	@Success		201		{object}	portalsdk.FormTokenResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Failure		404		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/forms/{id}/tokens [post].
func (h *AdminHandler) HandleCreateFormToken(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	var req portalsdk.FormTokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}
	if req.CompanyID == "" {
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest, "company_id is required")
		return
	}

	ttl := new(time.Duration)
	*ttl = service.DefaultFormTokenTTL
	if req.ExpiresInDays != nil {
		switch days := *req.ExpiresInDays; {
		case days < 0:
			httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest, "expires_in_days must not be negative")
			return
		case days > maxFormTokenTTLDays:
			httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest,
				fmt.Sprintf("expires_in_days must be at most %d", maxFormTokenTTLDays))
			return
		case days == 0:
			ttl = nil
		default:
			*ttl = time.Duration(days) * 24 * time.Hour
		}
	}

	t, err := h.Forms.IssueToken(r.Context(), claims.OrgID, r.PathValue("id"), req.CompanyID, ttl, req.MaxUses, claims.Subject)
	if err != nil {
		writeCommonError(w, r, err, "create form token")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.formTokenResponse(t))
}

// HandleListFormTokens serves GET /admin/forms/{id}/tokens.
//
//	@Summary		List form links
//	@Description	List every link created for a form.
//	@Tags			Admin
//	@Produce		json
//	@Param			id	path		string	true	"Form ID"
//	@Success		200		{object}	portalsdk.FormTokenListResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Failure		404		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/forms/{id}/tokens [get].
func (h *AdminHandler) HandleListFormTokens(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	tokens, err := h.Forms.ListTokens(r.Context(), claims.OrgID, r.PathValue("id"))
	if err != nil {
		writeCommonError(w, r, err, "list form tokens")
		return
	}

	out := portalsdk.FormTokenListResponse{Tokens: make([]portalsdk.FormTokenResponse, 0, len(tokens))}
	for _, t := range tokens {
		out.Tokens = append(out.Tokens, h.formTokenResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleDeactivateFormToken serves DELETE /admin/form-tokens/{id}.
//
//	@Summary		Deactivate a form link
//	@Description	Stop a form link from being opened or submitted. Idempotent.
//	@Tags			Admin
//	@Produce		json
//	@Param			id	path		string	true	"Form link ID"
//	@Success		200		{object}	portalsdk.FormTokenResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Failure		404		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/form-tokens/{id} [delete].
func (h *AdminHandler) HandleDeactivateFormToken(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	t, err := h.Forms.Deactivate(r.Context(), claims.OrgID, r.PathValue("id"), claims.Subject)
	if err != nil {
		writeCommonError(w, r, err, "deactivate form token")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.formTokenResponse(t))
}

// HandleRemoveMember serves DELETE /admin/members/{id}.
//
//	@Summary		Remove a member
//	@Description	Deactivate a member and revoke their refresh tokens. Admins cannot remove themselves or other admins.
//	@Tags			Admin
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200		{object}	portalsdk.StatusResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Failure		404		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/members/{id} [delete].
func (h *AdminHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	if _, err := h.Admin.RemoveMember(r.Context(), claims.OrgID, r.PathValue("id"), claims.Subject); err != nil {
		writeCommonError(w, r, err, "remove member")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalsdk.StatusResponse{Status: "removed"})
}

// HandleListAudit serves GET /admin/audit?limit=N.
//
//	@Summary		Read the audit log
//	@Description	Return the organization's newest audit entries.
//	@Tags			Admin
//	@Produce		json
//	@Param			limit	query		integer	false	"Maximum entries (default 100, max 1000)"
//	@Success		200		{object}	portalsdk.AuditListResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		403		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/admin/audit [get].
func (h *AdminHandler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.Admin.ListAudit(r.Context(), claims.OrgID, limit)
	if err != nil {
		writeCommonError(w, r, err, "list audit log")
		return
	}

	out := portalsdk.AuditListResponse{Entries: make([]portalsdk.AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, portalsdk.AuditEntryResponse{
			ID:           e.ID,
			SubjectID:    e.SubjectID,
			Action:       string(e.Action),
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Outcome:      string(e.Outcome),
			Reason:       e.Reason,
			IP:           e.IP,
			UserAgent:    e.UserAgent,
			Extra:        e.Extra,
			Timestamp:    e.Timestamp,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) formTokenResponse(t domain.FormAccessToken) portalsdk.FormTokenResponse {
	return portalsdk.FormTokenResponse{
		ID:          t.ID,
		Token:       t.Token,
		URL:         shareURL(h.PublicBaseURL, t.Token),
		FormID:      t.FormID,
		CompanyID:   t.CompanyID,
		ExpiresAt:   t.ExpiresAt,
		MaxUses:     t.MaxUses,
		UseCount:    t.UseCount,
		AccessCount: t.AccessCount,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt,
	}
}

// shareURL builds the link handed to form recipients.
func shareURL(base, token string) string {
	if base == "" {
		return "/forms/" + url.PathEscape(token)
	}
	u, err := url.JoinPath(base, "forms", token)
	if err != nil {
		return "/forms/" + url.PathEscape(token)
	}
	return u
}

func inviteResponse(c domain.InviteCode) portalsdk.InviteCodeResponse {
	return portalsdk.InviteCodeResponse{
		Code:      c.Code,
		Role:      c.Role,
		ExpiresAt: c.ExpiresAt,
		Used:      c.Used,
		UsedBy:    c.UsedBy,
		UsedAt:    c.UsedAt,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
	}
}

func formResponse(f domain.Form) portalsdk.FormResponse {
	return portalsdk.FormResponse{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Fields:      f.Fields,
		CreatedAt:   f.CreatedAt,
	}
}

func companyResponse(c domain.Company) portalsdk.CompanyResponse {
	return portalsdk.CompanyResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}
