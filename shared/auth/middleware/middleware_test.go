package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"escrow-service/shared/auth/pkg/jwtutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("mw-secret")

func signed(t *testing.T, uid string, roles ...string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtutil.Claims{
		UserID: uid,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

// echo reports the identity the middleware stored.
var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	uid, _ := GetUserID(r.Context())
	w.Header().Set("X-User", uid)
	if tok, ok := GetToken(r.Context()); ok && tok != "" {
		w.Header().Set("X-Has-Token", "1")
	}
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_TokenSources(t *testing.T) {
	m := FromVerifier(jwtutil.NewHMACVerifier(secret, "", ""), nil)
	h := m.Middleware(echo)
	tok := signed(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-User"))
	assert.Equal(t, "1", rec.Header().Get("X-Has-Token"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: tok})
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil)
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
}

func TestRequireRoles(t *testing.T) {
	m := FromVerifier(jwtutil.NewHMACVerifier(secret, "", ""), nil)
	h := m.Require("ADMIN")(echo)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "alice"))
	assert.Equal(t, http.StatusForbidden, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "ops", "admin"))
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops", rec.Header().Get("X-User"))
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := RateLimiter(rdb, 2, time.Minute, 30*time.Second, "test", nil)(echo)
	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		return serve(h, req)
	}

	first := call("10.0.0.1")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)

	blocked := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "30", blocked.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1").Code, "block persists")
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2").Code)

	mr.FastForward(31 * time.Second)
	mr.FastForward(time.Minute)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	h := RateLimiter(rdb, 1, time.Minute, time.Minute, "test", nil)(echo)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}
