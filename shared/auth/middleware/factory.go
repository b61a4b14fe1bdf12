package middleware

import (
	"fmt"
	"net/http"
	"time"

	"escrow-service/shared/auth/pkg/jwtutil"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type MiddlewareWithClient struct {
	Middleware func(http.Handler) http.Handler
	Require    func(allowedRoles ...string) func(http.Handler) http.Handler
	RateLimit  func(rdb *redis.Client, limit int, window time.Duration, blockDuration time.Duration, keyPrefix string, logger *zap.Logger) func(http.Handler) http.Handler
}

// RequireAuth builds the auth middleware set from JWT settings.
func RequireAuth(cfg jwtutil.JWTConfig, logger *zap.Logger) (*MiddlewareWithClient, error) {
	verifier, err := jwtutil.LoadAndBuild(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth middleware: %w", err)
	}
	return FromVerifier(verifier, logger), nil
}

func FromVerifier(verifier *jwtutil.Verifier, logger *zap.Logger) *MiddlewareWithClient {
	m := NewAuthMiddleware(verifier, logger)
	return &MiddlewareWithClient{
		Middleware: m.AuthMiddleware,
		Require:    m.RequireRoles,
		RateLimit:  RateLimiter,
	}
}
