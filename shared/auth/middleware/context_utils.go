package middleware

import (
	"context"
	"net/http"

	"escrow-service/shared/auth/pkg/jwtutil"
)

type contextKey string

const (
	ContextUserID contextKey = "userID"
	ContextToken  contextKey = "token"
	ContextRoles  contextKey = "roles"
)

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok && val != ""
}

func GetToken(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextToken).(string)
	return val, ok
}

func GetRoles(ctx context.Context) []string {
	val, _ := ctx.Value(ContextRoles).([]string)
	return val
}

// WithIdentity stores a caller identity in ctx. Used by the HTTP middleware
// and by tests that bypass token verification.
func WithIdentity(ctx context.Context, userID string, roles ...string) context.Context {
	ctx = context.WithValue(ctx, ContextUserID, userID)
	return context.WithValue(ctx, ContextRoles, roles)
}

func setContextValues(r *http.Request, claims *jwtutil.Claims, token string) *http.Request {
	ctx := WithIdentity(r.Context(), claims.UserID, claims.AllRoles()...)
	ctx = context.WithValue(ctx, ContextToken, token)
	return r.WithContext(ctx)
}
