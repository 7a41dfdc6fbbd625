package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalsdk"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

func writeBadJSON(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest, err.Error())
}

// writeCommonError handles the errors every handler maps the same way.
// Handlers check their own sentinels first.
func writeCommonError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrWeakPassword), errors.Is(err, domain.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, portalsdk.CodeNotFound, "resource not found")
	case errors.Is(err, domain.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, portalsdk.CodeForbidden, err.Error())
	default:
		slogx.FromContext(r.Context()).Error("failed to "+action, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, portalsdk.CodeServerError, "failed to "+action)
	}
}

func writeLockedOut(w http.ResponseWriter, err error) {
	if wait, ok := service.RetryAfter(err); ok {
		secs := max(int((wait.Seconds())+0.999), 1)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, portalsdk.CodeLockedOut,
		"too many failed logins, try again later")
}

// writeAuthnError answers a rejected bearer token.
func writeAuthnError(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, domain.ErrExpiredCredential) {
		httpx.WriteBearerError(w, portalsdk.CodeInvalidToken, "access token expired")
		return
	}
	httpx.WriteBearerError(w, portalsdk.CodeInvalidToken, "access token invalid")
}
