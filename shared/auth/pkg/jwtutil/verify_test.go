package jwtutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func claimsFor(uid string, ttl time.Duration) Claims {
	return Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth",
			Audience:  jwt.ClaimStrings{"escrow"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier([]byte("k"), "auth", "escrow")

	c := claimsFor("alice", time.Hour)
	c.Role = "ADMIN"
	c.Roles = []string{"support"}
	got, err := v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("k"), c))
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.ElementsMatch(t, []string{"ADMIN", "support"}, got.AllRoles())

	_, err = v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("other"), c))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("k"), claimsFor("alice", -time.Minute)))
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	wrongAud := claimsFor("alice", time.Hour)
	wrongAud.Audience = jwt.ClaimStrings{"payments"}
	_, err = v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("k"), wrongAud))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_SubjectFallbackAndMissingUser(t *testing.T) {
	v := NewHMACVerifier([]byte("k"), "", "")

	c := claimsFor("", time.Hour)
	c.Subject = "bob"
	got, err := v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("k"), c))
	require.NoError(t, err)
	assert.Equal(t, "bob", got.UserID)

	_, err = v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("k"), claimsFor("", time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRSAVerifier_FromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := LoadAndBuild(JWTConfig{PubPath: path, Secret: "ignored", Issuer: "auth", Audience: "escrow"})
	require.NoError(t, err)

	got, err := v.ParseAndValidate(sign(t, jwt.SigningMethodRS256, key, claimsFor("carol", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "carol", got.UserID)

	// an HMAC token must not pass an RSA verifier
	_, err = v.ParseAndValidate(sign(t, jwt.SigningMethodHS256, []byte("ignored"), claimsFor("carol", time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadAndBuild_RequiresKeyMaterial(t *testing.T) {
	_, err := LoadAndBuild(JWTConfig{})
	require.Error(t, err)
	_, err = LoadAndBuild(JWTConfig{PubPath: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
}
