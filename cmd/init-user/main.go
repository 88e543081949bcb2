package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/config"
	"github.com/tendant/simple-mfa/pkg/login"
)

// init-user seeds an account directly in Postgres, typically the first admin.
func main() {
	name := flag.String("name", "", "Name for the new account (required)")
	email := flag.String("email", "", "Email for the new account (required)")
	password := flag.String("password", "", "Password for the new account (required)")
	role := flag.String("role", account.RoleAdmin, "Role to assign to the account")
	flag.Parse()

	if *name == "" || *email == "" || *password == "" {
		fmt.Println("Error: name, email, and password are required")
		flag.Usage()
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbConfig := cfg.Database.ToDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB := stdlib.OpenDBFromPool(pool)
	err = account.Migrate(ctx, sqlDB)
	sqlDB.Close()
	if err != nil {
		slog.Error("Failed to migrate database", "err", err)
		os.Exit(1)
	}

	store := account.NewPostgresCredentialStore(pool)
	passwords := login.NewPasswordAuthenticator(store)

	if err := login.ValidateCredentialsFormat(*email, *password); err != nil {
		slog.Error("Invalid credentials", "err", err)
		os.Exit(1)
	}
	hash, err := passwords.HashPassword(*password)
	if err != nil {
		slog.Error("Failed to hash password", "err", err)
		os.Exit(1)
	}

	acct := account.NewAccount(*name, *email, hash)
	acct.Roles = []string{*role}
	acct.EmailValid = true
	acct.Require2FAForBasicLogin = false
	acct.Require2FAForSocialLogin = false

	created, err := store.Create(ctx, acct)
	if err != nil {
		slog.Error("Failed to create account", "email", *email, "err", err)
		os.Exit(1)
	}

	slog.Info("Account created successfully", "email", created.Email, "role", *role, "id", created.ID)
}
