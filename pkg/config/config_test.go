package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "orion-users", cfg.Jwt.Issuer)
	assert.False(t, cfg.Jwt.UseRSA())
	assert.Equal(t, EmailTransportLog, cfg.Email.Transport)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, uint16(5432), cfg.Database.Port)

	expiry, err := cfg.Jwt.ParseAccessTokenExpiry()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, expiry)

	ttl, err := cfg.WebAuthn.ParseChallengeTTL()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, ttl)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_ISSUER", "test-issuer")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "PT30M")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("EMAIL_TRANSPORT", "smtp")
	t.Setenv("EMAIL_PORT", "2525")
	t.Setenv("TOTP_SKEW", "1")
	t.Setenv("WEBAUTHN_PASSWORDLESS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-issuer", cfg.Jwt.Issuer)
	expiry, err := cfg.Jwt.ParseAccessTokenExpiry()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, expiry)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2525, cfg.Email.ToSMTPConfig().Port)
	assert.Equal(t, uint(1), cfg.TwoFactor.Skew)
	assert.True(t, cfg.WebAuthn.Passwordless)
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"PT1H":  time.Hour,
		"PT90S": 90 * time.Second,
		"1h":    time.Hour,
		"2m30s": 150 * time.Second,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDuration("soon")
	assert.Error(t, err)
}

func TestToDatabaseURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Database: "mfa", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5433/mfa?sslmode=disable", d.ToDatabaseURL())
	assert.Equal(t, uint16(5433), d.ToDbConfig().Port)
}
