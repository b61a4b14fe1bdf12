package jwtutil

import (
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID string   `json:"uid"`
	Role   string   `json:"role,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AllRoles merges the single-role and multi-role claim forms.
func (c *Claims) AllRoles() []string {
	roles := make([]string, 0, len(c.Roles)+1)
	roles = append(roles, c.Roles...)
	if c.Role != "" {
		roles = append(roles, c.Role)
	}
	return roles
}

type JWTConfig struct {
	PubPath  string
	Secret   string
	Issuer   string
	Audience string
}
