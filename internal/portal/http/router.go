//go:generate swag init -g router.go -d ./,../../../pkg/portalsdk -o ../../../api/portal --outputTypes go

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"

	_ "github.com/aussiebroadwan/portal/api/portal" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// swaggerCSP lets the Swagger UI run its inline bootstrap script.
const swaggerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Issuer      *service.Issuer
	AuthService *service.AuthService
	FormService *service.FormService
	Admin       *service.AdminService
	Activity    activity.Tracker
	Metrics     *metrics.Metrics

	// PublicBaseURL prefixes the share URL of form links.
	PublicBaseURL string

	// Clock drives the rate limiters. Defaults to the wall clock.
	Clock clockx.Clock

	// Env is the deployment environment. "prod" enables HSTS.
	Env string
}

func NewRouter(keys *jwtx.KeySet, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Clock:        clockx.Real(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		clientMeta,
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.middlewares = append(r.middlewares, httpx.SecurityHeaders(r.Env == "prod" || r.Env == "production"))

	r.registerAuth()
	r.registerPublicForms()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						Portal Credential Service API
//	@version					0.1.0
//	@description				Invite codes, refresh tokens, form links and session activity for the portal.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/portal
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				EdDSA signed access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) limitByIP(profile string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return httpx.RateLimitByIP(cfg, r.rateLimitOptions(profile)...)
}

func (r *Router) limitBySubject(profile string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return httpx.RateLimitBySubject(cfg, r.rateLimitOptions(profile)...)
}

func (r *Router) rateLimitOptions(profile string) []httpx.RateLimitOption {
	return []httpx.RateLimitOption{
		httpx.WithRateLimitClock(r.Clock),
		httpx.OnRateLimited(func(*http.Request, string) { r.Metrics.RateLimited(profile) }),
	}
}

// protected is the chain every authenticated route shares. Subject keyed
// limits need the claims, so they run inside Authn.
func (r *Router) protected(h http.Handler, roles ...string) http.Handler {
	mw := []httpx.Middleware{
		httpx.Authn(r.Issuer, writeAuthnError),
		ActivityMiddleware(r.Activity, r.expireSession),
	}
	if len(roles) > 0 {
		mw = append(mw, httpx.RequireRole(roles...))
	}
	mw = append(mw, r.limitBySubject("moderate", httpx.ModerateLimit))
	return httpx.Chain(h, mw...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.AuthService}

	// Credential endpoints are never activity tracked.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin), r.limitByIP("strict", httpx.StrictLimit)))
	r.Mux.Handle("POST /auth/signup/admin",
		httpx.Chain(http.HandlerFunc(h.HandleSignupAdmin), r.limitByIP("strict", httpx.StrictLimit)))
	r.Mux.Handle("POST /auth/signup/user",
		httpx.Chain(http.HandlerFunc(h.HandleSignupUser), r.limitByIP("strict", httpx.StrictLimit)))
	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh), r.limitByIP("moderate", httpx.ModerateLimit)))
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout), r.limitByIP("moderate", httpx.ModerateLimit)))

	r.Mux.Handle("GET /me", r.protected(http.HandlerFunc(h.HandleMe)))
}

func (r *Router) registerPublicForms() {
	h := &PublicFormHandler{Forms: r.FormService}

	r.Mux.Handle("GET /public/forms/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleGet), r.limitByIP("public", httpx.PublicLimit)))
	r.Mux.Handle("POST /public/forms/{token}/submit",
		httpx.Chain(http.HandlerFunc(h.HandleSubmit), r.limitByIP("public", httpx.PublicLimit)))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{
		Admin:         r.Admin,
		Forms:         r.FormService,
		PublicBaseURL: r.PublicBaseURL,
	}

	r.Mux.Handle("POST /admin/invite-codes", r.protected(http.HandlerFunc(h.HandleCreateInvite), domain.RoleAdmin))
	r.Mux.Handle("GET /admin/invite-codes", r.protected(http.HandlerFunc(h.HandleListInvites), domain.RoleAdmin))
	r.Mux.Handle("POST /admin/forms", r.protected(http.HandlerFunc(h.HandleCreateForm), domain.RoleAdmin))
	r.Mux.Handle("POST /admin/companies", r.protected(http.HandlerFunc(h.HandleCreateCompany), domain.RoleAdmin))
	r.Mux.Handle("POST /admin/forms/{id}/tokens", r.protected(http.HandlerFunc(h.HandleCreateFormToken), domain.RoleAdmin))
	r.Mux.Handle("GET /admin/forms/{id}/tokens", r.protected(http.HandlerFunc(h.HandleListFormTokens), domain.RoleAdmin))
	r.Mux.Handle("DELETE /admin/form-tokens/{id}", r.protected(http.HandlerFunc(h.HandleDeactivateFormToken), domain.RoleAdmin))
	r.Mux.Handle("DELETE /admin/members/{id}", r.protected(http.HandlerFunc(h.HandleRemoveMember), domain.RoleAdmin))
	r.Mux.Handle("GET /admin/audit", r.protected(http.HandlerFunc(h.HandleListAudit), domain.RoleAdmin))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys))
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}

	swagger := httpSwagger.Handler()
	r.Mux.Handle("GET /swagger/", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Security-Policy", swaggerCSP)
		swagger.ServeHTTP(w, req)
	}))
}
