package middleware

import (
	"net/http"

	"escrow-service/shared/auth/pkg/jwtutil"
	"escrow-service/shared/response"

	"go.uber.org/zap"
)

type AuthMiddleware struct {
	Verifier *jwtutil.Verifier
	logger   *zap.Logger
}

func NewAuthMiddleware(verifier *jwtutil.Verifier, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		Verifier: verifier,
		logger:   logger,
	}
}

// handleAuth validates the bearer token and optional role restrictions.
func (am *AuthMiddleware) handleAuth(w http.ResponseWriter, r *http.Request, allowedRoles []string) (string, *jwtutil.Claims, bool) {
	token := extractToken(r)
	if token == "" {
		response.ErrorWithCode(w, http.StatusUnauthorized, "unauthenticated", "No token provided")
		return "", nil, false
	}

	claims, err := am.Verifier.ParseAndValidate(token)
	if err != nil {
		am.logger.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
		response.ErrorWithCode(w, http.StatusUnauthorized, "unauthenticated", "Invalid or expired token")
		return "", nil, false
	}

	if len(allowedRoles) > 0 && !containsAny(allowedRoles, claims.AllRoles()) {
		am.logger.Warn("insufficient role",
			zap.String("user_id", claims.UserID),
			zap.Strings("roles", claims.AllRoles()),
			zap.String("path", r.URL.Path))
		response.ErrorWithCode(w, http.StatusForbidden, "unauthorized", "insufficient role")
		return "", nil, false
	}

	return token, claims, true
}

// AuthMiddleware without restrictions
func (am *AuthMiddleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, ok := am.handleAuth(w, r, nil)
		if !ok {
			return
		}
		next.ServeHTTP(w, setContextValues(r, claims, token))
	})
}

// RequireRoles rejects callers holding none of the given roles.
func (am *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, ok := am.handleAuth(w, r, allowedRoles)
			if !ok {
				return
			}
			next.ServeHTTP(w, setContextValues(r, claims, token))
		})
	}
}
