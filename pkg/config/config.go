package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/sosodev/duration"
	"github.com/tendant/chi-demo/app"
)

type Config struct {
	AppConfig          app.AppConfig
	Database           DatabaseConfig
	Redis              RedisConfig
	Email              EmailConfig
	Jwt                JWTConfig
	TwoFactor          TwoFactorConfig
	WebAuthn           WebAuthnConfig
	Social             SocialConfig
	RateLimit          RateLimitConfig
	StoreBackend       string `env:"STORE_BACKEND" env-default:"postgres"`
	EmailValidationURL string `env:"EMAIL_VALIDATION_URL" env-default:"http://localhost:8080/users/validateEmail"`
}

// Load applies a .env file if one exists, then reads the environment.
func Load() (Config, error) {
	loadEnvFile()
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFile() {
	envFile := ".env"
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(candidate); err == nil {
			envFile = candidate
		}
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}
	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "err", err)
	}
}

// ParseDuration accepts ISO 8601 durations first, then Go durations.
func ParseDuration(s string) (time.Duration, error) {
	if d, err := duration.Parse(s); err == nil {
		return d.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}
