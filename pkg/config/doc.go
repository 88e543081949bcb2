// Package config loads simple-mfa settings from the environment.
//
// Values are read with cleanenv from env tags, after an optional .env file
// next to the binary or in the working directory has been applied with
// godotenv. Durations accept ISO 8601 ("PT1H") or Go syntax ("1h").
//
//	cfg, err := config.Load()
//	if err != nil {
//	    slog.Error("Failed to load config", "err", err)
//	    os.Exit(1)
//	}
package config
