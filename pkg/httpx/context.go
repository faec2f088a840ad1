package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID      ctxKey = "user_id"
	CtxKeyAccessLevel ctxKey = "access_level"
	CtxKeyClaims      ctxKey = "claims"
)

// UserIDFromContext returns the authenticated user id set by AuthnMiddleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUserID).(string)
	return v, ok
}

// AccessLevelFromContext returns the token's access-level claim. This is the
// level at issue time; admin gates re-resolve from the store.
func AccessLevelFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyAccessLevel).(string)
	return v, ok
}
