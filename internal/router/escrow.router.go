package router

import (
	"net/http"
	"time"

	"escrow-service/internal/domain"
	hrest "escrow-service/internal/handler/rest"
	"escrow-service/shared/auth/middleware"
	"escrow-service/shared/response"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	RateBlock   time.Duration
}

// SetupRoutes wires the public health checks and the authenticated API. rdb may be
// nil, in which case requests are not rate limited.
func SetupRoutes(
	r chi.Router,
	h *hrest.EscrowRestHandler,
	auth *middleware.MiddlewareWithClient,
	rdb *redis.Client,
	opts Options,
	logger *zap.Logger,
) chi.Router {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	// ---- Global Middleware ----
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// ---- Health checks ----
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// ---- Authenticated ----
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware)
		if rdb != nil && opts.RateLimit > 0 {
			pr.Use(auth.RateLimit(rdb, opts.RateLimit, opts.RateWindow, opts.RateBlock, "escrow", logger))
		}

		pr.Get("/ws/wallet", h.WalletWS)
		pr.Route("/api/v1", func(api chi.Router) {
			h.RegisterRoutes(api, auth.Require(domain.RoleAdmin))
		})
	})

	return r
}
