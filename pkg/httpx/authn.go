package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// TokenVerifier turns a raw bearer token into claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*jwtx.Claims, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (*jwtx.Claims, error)

func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*jwtx.Claims, error) {
	return f(ctx, token)
}

// AuthErrorFunc writes the response for a failed verification.
type AuthErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Authn requires a valid bearer access token and stores its claims on the
// request context. onError may be nil.
func Authn(v TokenVerifier, onError AuthErrorFunc) Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			WriteBearerError(w, "invalid_token", "token verification failed")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				WriteBearerError(w, "invalid_token", "missing bearer token")
				return
			}

			claims, err := v.Verify(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Debug("bearer token rejected", "err", err)
				onError(w, r, err)
				return
			}

			ctx = WithClaims(ctx, claims)
			ctx = slogx.With(ctx, "sub", claims.Subject, "org", claims.OrgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WriteBearerError sends an RFC 6750 style 401.
func WriteBearerError(w http.ResponseWriter, code, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, code, desc)
}
