package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/sitepass/sitepass/pkg/jwtx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

// TokenVerifier validates a bearer access token and returns its claims.
// Implemented by the token service so verification always consults the
// current secret state.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (jwtx.Claims, error)
}

// AuthnMiddleware requires a valid bearer access token and injects the
// authenticated user into the request context. All verification failures
// produce the same response body so callers cannot distinguish expired from
// forged tokens.
func AuthnMiddleware(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.VerifyAccess(ctx, raw)
			if err != nil {
				log.Warn("access token verification failed", "err", err)
				writeBearerError(w, "invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeyAccessLevel, claims.AccessLevel)
			ctx = context.WithValue(ctx, CtxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
