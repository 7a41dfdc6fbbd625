package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalsdk"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// ExpireFunc ends a session that went idle.
type ExpireFunc func(ctx context.Context, subject, orgID string)

// ActivityMiddleware enforces the server-side idle timeout on
// authenticated routes. It must run after Authn. A request from an idle
// session is answered 401 session_expired and onExpired runs; a request
// that succeeds (<400) counts as activity.
//
// Tracker failures other than expiry are logged and the request is let
// through.
func ActivityMiddleware(tr activity.Tracker, onExpired ExpireFunc) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if tr == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims, ok := httpx.ClaimsFromContext(ctx)
			if !ok {
				httpx.WriteBearerError(w, portalsdk.CodeInvalidToken, "missing bearer token")
				return
			}

			if err := tr.Check(ctx, claims.Subject); err != nil {
				if errors.Is(err, activity.ErrSessionExpired) {
					if onExpired != nil && errors.Is(err, activity.ErrIdleTimeout) {
						onExpired(ctx, claims.Subject, claims.OrgID)
					}
					httpx.WriteBearerError(w, portalsdk.CodeSessionExpired, "session expired after inactivity")
					return
				}
				slogx.FromContext(ctx).Warn("activity check failed", "err", err)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status < http.StatusBadRequest {
				if err := tr.Touch(ctx, claims.Subject); err != nil {
					slogx.FromContext(ctx).Warn("activity touch failed", "err", err)
				}
			}
		})
	}
}

func (r *Router) expireSession(ctx context.Context, subject, orgID string) {
	if r.AuthService == nil {
		return
	}
	if err := r.AuthService.ExpireIdleSession(ctx, subject, orgID); err != nil {
		slogx.FromContext(ctx).Error("failed to expire idle session", "err", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
