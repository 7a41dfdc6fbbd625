package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalsdk"
)

type AuthHandler struct {
	Auth *service.AuthService
}

func tokenResponse(p domain.TokenPair) portalsdk.TokenResponse {
	return portalsdk.TokenResponse{
		AccessToken:      p.Access.Token,
		RefreshToken:     p.Refresh.Token,
		TokenType:        "Bearer",
		ExpiresIn:        int(p.Access.ExpiresIn.Seconds()),
		RefreshExpiresIn: int(p.Refresh.ExpiresIn.Seconds()),
	}
}

// HandleLogin serves POST /auth/login.
//
//	@Summary		Log in
//	@Description	Exchange an email and password for an access and refresh token pair. Five failures in five minutes lock the account for fifteen minutes.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	portalsdk.TokenResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Failure		429		{object}	portalsdk.ErrorResponse
//	@Router			/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidRequest, "email and password are required")
		return
	}

	pair, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLockedOut):
			writeLockedOut(w, err)
		case errors.Is(err, domain.ErrInvalidCredential), errors.Is(err, domain.ErrInactiveUser):
			httpx.WriteError(w, http.StatusUnauthorized, portalsdk.CodeInvalidCredentials, "invalid email or password")
		default:
			writeCommonError(w, r, err, "log in")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleSignupAdmin serves POST /auth/signup/admin.
//
//	@Summary		Create an organization
//	@Description	Create an organization and its first admin, then log the admin in.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.SignupAdminRequest	true	"Admin and organization"
//	@Success		201		{object}	portalsdk.TokenResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		429		{object}	portalsdk.ErrorResponse
//	@Router			/auth/signup/admin [post].
func (h *AuthHandler) HandleSignupAdmin(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.SignupAdminRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	pair, err := h.Auth.SignupAdmin(r.Context(), service.SignupAdminRequest{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		writeSignupError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, tokenResponse(pair))
}

// HandleSignupUser serves POST /auth/signup/user.
//
//	@Summary		Join with an invite code
//	@Description	Redeem a single-use invite code and create the member it admits. The code is consumed exactly once.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.SignupUserRequest	true	"Member and invite code"
//	@Success		201		{object}	portalsdk.TokenResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		429		{object}	portalsdk.ErrorResponse
//	@Router			/auth/signup/user [post].
func (h *AuthHandler) HandleSignupUser(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.SignupUserRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	pair, err := h.Auth.SignupUser(r.Context(), service.SignupUserRequest{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		writeSignupError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, tokenResponse(pair))
}

func writeSignupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateEmail):
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeDuplicateEmail, "email is already registered")
	case errors.Is(err, domain.ErrAlreadyConsumed):
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidInviteCode, "invite code has already been used")
	case errors.Is(err, domain.ErrExpiredCredential):
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidInviteCode, "invite code has expired")
	case errors.Is(err, domain.ErrAlreadyConsumedOrExpired):
		httpx.WriteError(w, http.StatusBadRequest, portalsdk.CodeInvalidInviteCode, "invite code is invalid")
	default:
		writeCommonError(w, r, err, "sign up")
	}
}

// HandleRefresh serves POST /auth/refresh.
//
//	@Summary		Refresh the access token
//	@Description	Exchange a refresh token for a new access token. With rotation enabled the presented token is revoked and a replacement returned.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	portalsdk.RefreshResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Router			/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	res, err := h.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrRevokedRefreshToken) {
			desc := "refresh token is invalid"
			switch {
			case errors.Is(err, domain.ErrExpiredCredential):
				desc = "refresh token has expired"
			case errors.Is(err, domain.ErrRevoked):
				desc = "refresh token has been revoked"
			}
			httpx.WriteError(w, http.StatusUnauthorized, portalsdk.CodeInvalidToken, desc)
			return
		}
		writeCommonError(w, r, err, "refresh")
		return
	}

	out := portalsdk.RefreshResponse{
		AccessToken: res.Access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(res.Access.ExpiresIn.Seconds()),
	}
	if res.Refresh != nil {
		out.RefreshToken = res.Refresh.Token
		out.RefreshExpiresIn = int(res.Refresh.ExpiresIn.Seconds())
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleLogout serves POST /auth/logout. It always succeeds for well
// formed requests.
//
//	@Summary		Log out
//	@Description	Revoke a refresh token. Unknown and already revoked tokens are accepted.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		portalsdk.LogoutRequest	true	"Refresh token"
//	@Success		200		{object}	portalsdk.StatusResponse
//	@Failure		400		{object}	portalsdk.ErrorResponse
//	@Router			/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req portalsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadJSON(w, err)
		return
	}

	if err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeCommonError(w, r, err, "log out")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalsdk.StatusResponse{Status: "logged_out"})
}

// HandleMe serves GET /me.
//
//	@Summary		Current user
//	@Description	Describe the caller. Counts as session activity.
//	@Tags			Auth
//	@Produce		json
//	@Success		200		{object}	portalsdk.MeResponse
//	@Failure		401		{object}	portalsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteBearerError(w, portalsdk.CodeInvalidToken, "missing bearer token")
		return
	}

	u, err := h.Auth.Me(r.Context(), claims.Subject)
	if err != nil {
		writeCommonError(w, r, err, "load user")
		return
	}

	out := portalsdk.MeResponse{
		UserID: u.ID,
		OrgID:  u.OrgID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
