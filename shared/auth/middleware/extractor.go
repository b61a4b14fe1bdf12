package middleware

import (
	"net/http"
	"strings"
)

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	// browsers cannot set headers on websocket upgrades
	if q := r.URL.Query().Get("token"); q != "" {
		return q
	}
	return ""
}

func containsAny(allowed, have []string) bool {
	for _, a := range allowed {
		for _, h := range have {
			if strings.EqualFold(a, h) {
				return true
			}
		}
	}
	return false
}
