package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalsdk"
)

// PublicFormHandler serves form links to anonymous holders.
type PublicFormHandler struct {
	Forms *service.FormService
}

// HandleGet serves GET /public/forms/{token}.
//
//	@Summary		Open a form link
//	@Description	Return the form behind a shared link and record the access. Does not spend a use.
//	@Tags			Public Forms
//	@Produce		json
//	@Param			token	path		string	true	"Form link token"
//	@Success		200		{object}	portalsdk.PublicFormResponse
//	@Failure		404		{object}	portalsdk.ErrorResponse
//	@Failure		410		{object}	portalsdk.ErrorResponse
//	@Router			/public/forms/{token} [get].
func (h *PublicFormHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.Forms.Open(r.Context(), r.PathValue("token"))
	if err != nil {
		writeFormTokenError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, portalsdk.PublicFormResponse{
		Form:    formResponse(view.Form),
		Company: companyResponse(view.Company),
		TokenInfo: portalsdk.TokenInfo{
			ExpiresAt: view.Token.ExpiresAt,
			MaxUses:   view.Token.MaxUses,
			UseCount:  view.Token.UseCount,
			Remaining: view.Token.Remaining(),
		},
	})
}

// HandleSubmit serves POST /public/forms/{token}/submit. Eligibility is
// checked again atomically when the use is spent.
//
//	@Summary		Submit a form
//	@Description	Spend one use of a form link and store the answers.
//	@Tags			Public Forms
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string	true	"Form link token"
//	@Param			request	body		portalsdk.SubmitRequest	true	"Form answers"
//	@Success		201		{object}	portalsdk.SubmitResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		404		{object}	portalsdk.ErrorResponse
//	@Failure		410		{object}	portalsdk.ErrorResponse
//	@Router			/public/forms/{token}/submit [post].
func (h *PublicFormHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.SubmitRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	sub, err := h.Forms.Submit(r.Context(), r.PathValue("token"), req.Data)
	if err != nil {
		writeFormTokenError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, portalsdk.SubmitResponse{SubmissionID: sub.ID})
}

func writeFormTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential):
		httpx.WriteError(w, http.StatusNotFound, portalsdk.CodeNotFound, "form link not found")
	case errors.Is(err, domain.ErrExhausted):
		httpx.WriteError(w, http.StatusGone, portalsdk.CodeGone, "form link has reached its usage limit")
	case errors.Is(err, domain.ErrExpiredCredential):
		httpx.WriteError(w, http.StatusGone, portalsdk.CodeGone, "form link has expired")
	case errors.Is(err, domain.ErrExhaustedOrExpiredOrInactive):
		httpx.WriteError(w, http.StatusGone, portalsdk.CodeGone, "form link is no longer active")
	default:
		writeCommonError(w, r, err, "process form")
	}
}
