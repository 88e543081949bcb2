package main

import (
	"context"
	"crypto/rsa"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/config"
	"github.com/tendant/simple-mfa/pkg/externalprovider"
	"github.com/tendant/simple-mfa/pkg/login"
	"github.com/tendant/simple-mfa/pkg/loginflow"
	"github.com/tendant/simple-mfa/pkg/loginflow/api"
	"github.com/tendant/simple-mfa/pkg/notification"
	"github.com/tendant/simple-mfa/pkg/ratelimit"
	"github.com/tendant/simple-mfa/pkg/tokengenerator"
	"github.com/tendant/simple-mfa/pkg/twofa"
	"github.com/tendant/simple-mfa/pkg/webauthn"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, closeStore, err := newCredentialStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize credential store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	challenges := newChallengeStore(cfg.Redis)

	mailer, err := newMailer(ctx, cfg.Email)
	if err != nil {
		slog.Error("Failed to initialize mail transport", "transport", cfg.Email.Transport, "err", err)
		os.Exit(1)
	}

	issuer, tokenAuth, rsaGen, err := newTokenIssuer(cfg.Jwt)
	if err != nil {
		slog.Error("Failed to initialize token issuer", "err", err)
		os.Exit(1)
	}

	challengeTTL, err := cfg.WebAuthn.ParseChallengeTTL()
	if err != nil {
		slog.Error("Invalid WEBAUTHN_CHALLENGE_TTL", "value", cfg.WebAuthn.ChallengeTTL, "err", err)
		os.Exit(1)
	}
	ceremony := webauthn.NewCeremony(store, challenges,
		webauthn.WithRPName(cfg.WebAuthn.RPName),
		webauthn.WithChallengeTTL(challengeTTL),
	)

	socialTimeout, err := cfg.Social.ParseHTTPTimeout()
	if err != nil {
		slog.Error("Invalid SOCIAL_HTTP_TIMEOUT", "value", cfg.Social.HTTPTimeout, "err", err)
		os.Exit(1)
	}
	resolver := externalprovider.NewSocialIdentityResolver(
		externalprovider.WithProvider(externalprovider.Provider{
			ID:          externalprovider.ProviderGoogle,
			UserInfoURL: cfg.Social.GoogleUserInfoURL,
		}),
		externalprovider.WithUserInfoClient(externalprovider.NewHTTPUserInfoClient(
			externalprovider.WithTimeout(socialTimeout),
		)),
	)

	orchestrator := loginflow.NewLoginOrchestrator(store, issuer,
		loginflow.WithPasswordAuthenticator(login.NewPasswordAuthenticator(store)),
		loginflow.WithTOTPEngine(twofa.NewTOTPEngine(twofa.WithSkew(cfg.TwoFactor.Skew))),
		loginflow.WithTOTPIssuer(cfg.TwoFactor.Issuer),
		loginflow.WithWebAuthnCeremony(ceremony),
		loginflow.WithPasswordlessWebAuthn(cfg.WebAuthn.Passwordless),
		loginflow.WithSocialIdentityResolver(resolver),
		loginflow.WithMailer(mailer),
		loginflow.WithValidationURL(cfg.EmailValidationURL),
	)
	defer orchestrator.Wait()

	var handlerOpts []api.Option
	if cfg.RateLimit.Enabled {
		ttl, err := cfg.RateLimit.ParseTTL()
		if err != nil {
			slog.Error("Invalid LOGIN_RATE_LIMIT_TTL", "value", cfg.RateLimit.TTL, "err", err)
			os.Exit(1)
		}
		limiter := ratelimit.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, ttl)
		defer limiter.Close()
		handlerOpts = append(handlerOpts, api.WithLoginLimiter(ratelimit.Middleware(limiter, ratelimit.ClientIP)))
		slog.Info("Login rate limiting enabled", "rps", cfg.RateLimit.RPS, "burst", cfg.RateLimit.Burst)
	}
	handler := api.NewHandler(orchestrator, handlerOpts...)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	if rsaGen != nil {
		server.R.Get("/.well-known/jwks.json", rsaGen.JWKSHandler)
	}
	server.R.Route("/users", func(r chi.Router) {
		handler.RegisterRoutes(r, tokenAuth)
	})

	slog.Info("Starting simple-mfa", "store", cfg.StoreBackend, "mail", cfg.Email.Transport, "redis", cfg.Redis.Enabled())
	server.Run()
}

func newCredentialStore(ctx context.Context, cfg config.Config) (account.CredentialStore, func(), error) {
	if cfg.StoreBackend == "memory" {
		slog.Warn("Using in-memory credential store; accounts are lost on restart")
		return account.NewInMemCredentialStore(), func() {}, nil
	}

	dbConfig := cfg.Database.ToDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		return nil, nil, err
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := account.Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, nil, err
	}
	sqlDB.Close()

	return account.NewPostgresCredentialStore(pool), pool.Close, nil
}

func newChallengeStore(cfg config.RedisConfig) webauthn.ChallengeStore {
	if !cfg.Enabled() {
		return webauthn.NewInMemChallengeStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return webauthn.NewRedisChallengeStore(client)
}

func newMailer(ctx context.Context, cfg config.EmailConfig) (notification.Mailer, error) {
	switch cfg.Transport {
	case config.EmailTransportSMTP:
		sender, err := notification.NewSMTPSender(cfg.ToSMTPConfig())
		if err != nil {
			return nil, err
		}
		return notification.NewMailer(sender), nil
	case config.EmailTransportSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return notification.NewMailer(notification.NewSESSender(ses.NewFromConfig(awsCfg), cfg.From)), nil
	default:
		return notification.NewMailer(notification.NewLogSender(slog.Default())), nil
	}
}

func newTokenIssuer(cfg config.JWTConfig) (*tokengenerator.TokenIssuer, *jwtauth.JWTAuth, *tokengenerator.RSATokenGenerator, error) {
	expiry, err := cfg.ParseAccessTokenExpiry()
	if err != nil {
		return nil, nil, nil, err
	}
	opts := []tokengenerator.Option{
		tokengenerator.WithIssuer(cfg.Issuer),
		tokengenerator.WithExpiry(expiry),
	}

	if cfg.UseRSA() {
		var key *rsa.PrivateKey
		key, err = tokengenerator.LoadRSAPrivateKey(cfg.KeyFile)
		if err != nil {
			return nil, nil, nil, err
		}
		gen := tokengenerator.NewRSATokenGenerator(key, cfg.KeyID)
		return tokengenerator.NewTokenIssuer(gen, opts...), jwtauth.New("RS256", key, gen.PublicKey()), gen, nil
	}

	gen := tokengenerator.NewJwtTokenGenerator(cfg.Secret)
	return tokengenerator.NewTokenIssuer(gen, opts...), jwtauth.New("HS256", []byte(cfg.Secret), nil), nil, nil
}
