package login

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
)

// MinPasswordLength is the shortest password accepted anywhere.
const MinPasswordLength = 8

// ErrInvalidCredentials is returned for an unknown email and for a wrong
// password alike.
var ErrInvalidCredentials = errors.Unauthorized("invalid email or password")

// PasswordAuthenticator verifies the password factor against a CredentialStore.
type PasswordAuthenticator struct {
	store   account.CredentialStore
	hashers *PasswordHasherFactory
	// dummyHash is verified for unknown emails so both failure paths cost
	// one Argon2id evaluation.
	dummyHash string
}

type Option func(*PasswordAuthenticator)

func WithHasherFactory(f *PasswordHasherFactory) Option {
	return func(a *PasswordAuthenticator) {
		a.hashers = f
	}
}

func NewPasswordAuthenticator(store account.CredentialStore, opts ...Option) *PasswordAuthenticator {
	a := &PasswordAuthenticator{
		store:   store,
		hashers: NewPasswordHasherFactory(),
	}
	for _, opt := range opts {
		opt(a)
	}
	dummy, err := a.hashers.GetCurrentHasher().Hash("dummy-password-for-timing")
	if err != nil {
		slog.Error("Failed to prepare dummy password hash", "err", err)
	}
	a.dummyHash = dummy
	return a
}

// ValidateCredentialsFormat rejects blank fields and short passwords.
func ValidateCredentialsFormat(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" || len(password) < MinPasswordLength {
		return errors.InvalidInput("invalid credentials format")
	}
	return nil
}

// Authenticate returns the account when the password matches.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (account.Account, error) {
	if err := ValidateCredentialsFormat(email, password); err != nil {
		return account.Account{}, err
	}

	acct, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			if a.dummyHash != "" {
				_, _ = a.hashers.Verify(password, a.dummyHash)
			}
			return account.Account{}, ErrInvalidCredentials
		}
		return account.Account{}, err
	}

	ok, err := a.VerifyPassword(password, acct.PasswordHash)
	if err != nil {
		slog.Warn("Password verification failed", "email", email, "err", err)
		return account.Account{}, ErrInvalidCredentials
	}
	if !ok {
		return account.Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// VerifyPassword checks password against a stored hash of any version.
func (a *PasswordAuthenticator) VerifyPassword(password, hashedPassword string) (bool, error) {
	if hashedPassword == "" {
		return false, nil
	}
	return a.hashers.Verify(password, hashedPassword)
}

// HashPassword hashes with the current scheme.
func (a *PasswordAuthenticator) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", errors.InvalidInput("password must be at least 8 characters")
	}
	hashed, err := a.hashers.GetCurrentHasher().Hash(password)
	if err != nil {
		return "", errors.InternalWrap(err, "failed to hash password")
	}
	return hashed, nil
}

// UpgradeHashIfNeeded rehashes a verified password stored with an older
// scheme. Failures are logged and never fail the login.
func (a *PasswordAuthenticator) UpgradeHashIfNeeded(ctx context.Context, acct account.Account, password string) {
	if !a.hashers.NeedsRehash(acct.PasswordHash) {
		return
	}
	newHash, err := a.HashPassword(password)
	if err != nil {
		slog.Error("Failed to rehash password", "email", acct.Email, "err", err)
		return
	}
	if err := a.store.ChangePassword(ctx, acct.Email, acct.PasswordHash, newHash); err != nil {
		slog.Error("Failed to store upgraded password hash", "email", acct.Email, "err", err)
		return
	}
	slog.Info("Upgraded password hash", "email", acct.Email)
}
