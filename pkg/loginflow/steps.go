package loginflow

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/login"
	"github.com/tendant/simple-mfa/pkg/tokengenerator"
	"github.com/tendant/simple-mfa/pkg/twofa"
)

// PasswordStep verifies email and password.
type PasswordStep struct {
	passwords *login.PasswordAuthenticator
}

func NewPasswordStep(passwords *login.PasswordAuthenticator) *PasswordStep {
	return &PasswordStep{passwords: passwords}
}

func (s *PasswordStep) Name() string { return "password" }
func (s *PasswordStep) Order() int   { return OrderPrimaryFactor }

func (s *PasswordStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	acct, err := s.passwords.Authenticate(ctx, fc.Request.Email, fc.Request.Password)
	if err != nil {
		return false, err
	}
	fc.Account = acct
	return false, nil
}

// SocialAccountStep loads the account for a federated identity, creating it
// on first sight.
type SocialAccountStep struct {
	store     account.CredentialStore
	passwords *login.PasswordAuthenticator
}

func NewSocialAccountStep(store account.CredentialStore, passwords *login.PasswordAuthenticator) *SocialAccountStep {
	return &SocialAccountStep{store: store, passwords: passwords}
}

func (s *SocialAccountStep) Name() string { return "social_account" }
func (s *SocialAccountStep) Order() int   { return OrderPrimaryFactor }

func (s *SocialAccountStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	email := fc.Request.Email
	acct, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		fc.Account = acct
		return false, nil
	}
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		return false, err
	}

	acct, err = s.create(ctx, email, fc.Request.Name)
	if err != nil {
		return false, err
	}
	slog.Info("Account created from social login", "email", email, "provider", fc.Request.Provider)
	fc.Account = acct
	return false, nil
}

func (s *SocialAccountStep) create(ctx context.Context, email, name string) (account.Account, error) {
	placeholder, err := login.GenerateUnusablePassword()
	if err != nil {
		return account.Account{}, errors.InternalWrap(err, "failed to generate placeholder password")
	}
	hash, err := s.passwords.HashPassword(placeholder)
	if err != nil {
		return account.Account{}, err
	}

	acct := account.NewAccount(name, email, hash)
	acct.EmailValid = true

	created, err := s.store.Create(ctx, acct)
	if err == nil {
		return created, nil
	}
	if !errors.IsCode(err, errors.ErrCodeConflict) {
		return account.Account{}, err
	}

	// A concurrent first login may have created the account already.
	if winner, findErr := s.store.FindByEmail(ctx, email); findErr == nil {
		return winner, nil
	}

	// The email is free, so the display name collided with another account.
	acct.Name = email
	return s.store.Create(ctx, acct)
}

// AccountLookupStep loads the account named in the request.
type AccountLookupStep struct {
	store account.CredentialStore
}

func NewAccountLookupStep(store account.CredentialStore) *AccountLookupStep {
	return &AccountLookupStep{store: store}
}

func (s *AccountLookupStep) Name() string { return "account_lookup" }
func (s *AccountLookupStep) Order() int   { return OrderPrimaryFactor }

func (s *AccountLookupStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	acct, err := s.store.FindByEmail(ctx, fc.Request.Email)
	if err != nil {
		return false, err
	}
	fc.Account = acct
	return false, nil
}

// SecondFactorRequirementStep stops the flow with an incomplete result when
// the account's policy demands a second factor on this channel.
type SecondFactorRequirementStep struct{}

func (s *SecondFactorRequirementStep) Name() string { return "second_factor_requirement" }
func (s *SecondFactorRequirementStep) Order() int   { return OrderSecondFactorRequired }

func (s *SecondFactorRequirementStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	if !fc.Account.Requires2FA(fc.Request.Channel == ChannelSocial) {
		return false, nil
	}
	fc.Result = LoginResult{
		Requires2FA: true,
		Channel:     fc.Request.Channel,
		Message:     MessageRequires2FA,
	}
	return true, nil
}

// TOTPStep checks the request code against the account secret.
type TOTPStep struct {
	totp *twofa.TOTPEngine
}

func NewTOTPStep(totp *twofa.TOTPEngine) *TOTPStep {
	return &TOTPStep{totp: totp}
}

func (s *TOTPStep) Name() string { return "totp" }
func (s *TOTPStep) Order() int   { return OrderSecondFactor }

func (s *TOTPStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	if !fc.Account.UsingTwoFactor {
		return false, errors.Unauthorized("two-factor authentication is not enabled")
	}
	if fc.Request.Channel == ChannelSocial && !fc.Account.Require2FAForSocialLogin {
		return false, errors.Unauthorized("two-factor authentication is not required for social login")
	}
	if err := s.totp.ValidateCode(fc.Account.TOTPSecret, fc.Request.Code); err != nil {
		slog.Warn("Invalid 2FA code", "email", fc.Account.Email)
		return false, err
	}
	return false, nil
}

// TokenStep issues the access token and completes the flow.
type TokenStep struct {
	issuer *tokengenerator.TokenIssuer
}

func NewTokenStep(issuer *tokengenerator.TokenIssuer) *TokenStep {
	return &TokenStep{issuer: issuer}
}

func (s *TokenStep) Name() string { return "token" }
func (s *TokenStep) Order() int   { return OrderTokenIssuance }

func (s *TokenStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	token, expiresAt, err := s.issuer.Issue(fc.Account)
	if err != nil {
		return false, err
	}
	fc.Result = LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   fc.Account,
		Channel:   fc.Request.Channel,
	}
	return false, nil
}

// HashUpgradeStep re-hashes a legacy password after a successful login.
type HashUpgradeStep struct {
	passwords *login.PasswordAuthenticator
}

func NewHashUpgradeStep(passwords *login.PasswordAuthenticator) *HashUpgradeStep {
	return &HashUpgradeStep{passwords: passwords}
}

func (s *HashUpgradeStep) Name() string { return "hash_upgrade" }
func (s *HashUpgradeStep) Order() int   { return OrderPostLogin }

func (s *HashUpgradeStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	if fc.Request.Password != "" {
		s.passwords.UpgradeHashIfNeeded(ctx, fc.Account, fc.Request.Password)
	}
	return true, nil
}
