package config

import (
	"time"
)

// JWTConfig configures access token signing. JWT_KEY_FILE selects RS256
// with a PEM private key; otherwise JWT_SECRET is used with HS256.
type JWTConfig struct {
	Secret            string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	KeyFile           string `env:"JWT_KEY_FILE"`
	KeyID             string `env:"JWT_KEY_ID" env-default:"simple-mfa-1"`
	Issuer            string `env:"JWT_ISSUER" env-default:"orion-users"`
	AccessTokenExpiry string `env:"ACCESS_TOKEN_EXPIRY" env-default:"1h"`
}

// ParseAccessTokenExpiry parses the access token expiry duration
func (j JWTConfig) ParseAccessTokenExpiry() (time.Duration, error) {
	return ParseDuration(j.AccessTokenExpiry)
}

func (j JWTConfig) UseRSA() bool {
	return j.KeyFile != ""
}
