package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"escrow-service/shared/response"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func RateLimiter(rdb *redis.Client, limit int, window, blockDuration time.Duration, keyPrefix string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// 1. Prefer userID if authenticated
			var clientID string
			if userID, ok := GetUserID(ctx); ok {
				clientID = "uid:" + userID
			} else {
				// 2. Fallback: IP (check proxy headers first)
				ip := r.Header.Get("X-Forwarded-For")
				if ip == "" {
					ip = r.RemoteAddr
				}
				clientID = "ip:" + strings.TrimSpace(strings.Split(ip, ",")[0])
			}

			key := keyPrefix + ":" + clientID
			blockKey := key + ":blocked"

			// Check if already blocked
			blocked, _ := rdb.Get(ctx, blockKey).Result()
			if blocked == "1" {
				ttl, _ := rdb.TTL(ctx, blockKey).Result()
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				response.ErrorWithCode(w, http.StatusTooManyRequests, "rate_limited", "Too Many Requests. Try again in "+ttl.String())
				return
			}

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				// Fail open, don't block traffic if Redis is unavailable
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			// First request sets expiry
			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			if count > int64(limit) {
				rdb.Set(ctx, blockKey, "1", blockDuration)
				logger.Info("client blocked", zap.String("client", clientID), zap.Int64("count", count))
				w.Header().Set("Retry-After", strconv.Itoa(int(blockDuration.Seconds())))
				response.ErrorWithCode(w, http.StatusTooManyRequests, "rate_limited", "Too Many Requests. Blocked for "+blockDuration.String())
				return
			}

			ttl, _ := rdb.TTL(ctx, key).Result()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

			next.ServeHTTP(w, r)
		})
	}
}
