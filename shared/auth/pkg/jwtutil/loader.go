package jwtutil

import "errors"

// LoadAndBuild prefers an RSA public key when a path is configured and
// falls back to a shared HMAC secret.
func LoadAndBuild(cfg JWTConfig) (*Verifier, error) {
	if cfg.PubPath != "" {
		pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
		if err != nil {
			return nil, err
		}
		return NewVerifier(pub, cfg.Issuer, cfg.Audience), nil
	}
	if cfg.Secret != "" {
		return NewHMACVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience), nil
	}
	return nil, errors.New("jwt: neither public key path nor secret configured")
}
