package config

import "time"

type TwoFactorConfig struct {
	Issuer string `env:"TOTP_ISSUER" env-default:"orion-users"`
	Skew   uint   `env:"TOTP_SKEW" env-default:"0"`
}

type WebAuthnConfig struct {
	RPName       string `env:"WEBAUTHN_RP_NAME" env-default:"orion-users"`
	ChallengeTTL string `env:"WEBAUTHN_CHALLENGE_TTL" env-default:"2m"`
	Passwordless bool   `env:"WEBAUTHN_PASSWORDLESS" env-default:"false"`
}

func (w WebAuthnConfig) ParseChallengeTTL() (time.Duration, error) {
	return ParseDuration(w.ChallengeTTL)
}

// SocialConfig configures the provider user-info lookup for opaque tokens.
type SocialConfig struct {
	HTTPTimeout       string `env:"SOCIAL_HTTP_TIMEOUT" env-default:"10s"`
	GoogleUserInfoURL string `env:"GOOGLE_USERINFO_URL" env-default:"https://www.googleapis.com/oauth2/v2/userinfo"`
}

func (s SocialConfig) ParseHTTPTimeout() (time.Duration, error) {
	return ParseDuration(s.HTTPTimeout)
}

// RateLimitConfig limits credential-checking requests per client.
type RateLimitConfig struct {
	Enabled bool    `env:"LOGIN_RATE_LIMIT_ENABLED" env-default:"true"`
	RPS     float64 `env:"LOGIN_RATE_LIMIT_RPS" env-default:"0.5"`
	Burst   int     `env:"LOGIN_RATE_LIMIT_BURST" env-default:"10"`
	TTL     string  `env:"LOGIN_RATE_LIMIT_TTL" env-default:"1h"`
}

func (r RateLimitConfig) ParseTTL() (time.Duration, error) {
	return ParseDuration(r.TTL)
}
