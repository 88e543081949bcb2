package loginflow

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/externalprovider"
	"github.com/tendant/simple-mfa/pkg/login"
	"github.com/tendant/simple-mfa/pkg/notification"
	"github.com/tendant/simple-mfa/pkg/tokengenerator"
	"github.com/tendant/simple-mfa/pkg/twofa"
	"github.com/tendant/simple-mfa/pkg/webauthn"
)

const (
	DefaultValidationURL = "http://localhost:8080/users/validateEmail"
	mailTimeout          = 30 * time.Second
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Caller is the authenticated principal of a self-service request.
type Caller struct {
	Email string
	Roles []string
}

func (c Caller) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == account.RoleAdmin {
			return true
		}
	}
	return false
}

// UpdateUserRequest lists the fields a self-service update may change.
// Password and NewPassword go together.
type UpdateUserRequest struct {
	Email       string
	Name        string
	NewEmail    string
	Password    string
	NewPassword string
}

// LoginOrchestrator drives every sign-in path and the account lifecycle
// around it.
type LoginOrchestrator struct {
	store         account.CredentialStore
	issuer        *tokengenerator.TokenIssuer
	passwords     *login.PasswordAuthenticator
	totp          *twofa.TOTPEngine
	totpIssuer    string
	webauthn      *webauthn.Ceremony
	passwordless  bool
	social        *externalprovider.SocialIdentityResolver
	mailer        notification.Mailer
	validationURL string

	loginFlow           *FlowExecutor
	authenticateFlow    *FlowExecutor
	socialFlow          *FlowExecutor
	twoFactorFlow       *FlowExecutor
	socialTwoFactorFlow *FlowExecutor

	mailWG sync.WaitGroup
}

func NewLoginOrchestrator(store account.CredentialStore, issuer *tokengenerator.TokenIssuer, opts ...Option) *LoginOrchestrator {
	o := &LoginOrchestrator{
		store:         store,
		issuer:        issuer,
		totpIssuer:    twofa.DefaultTOTPIssuer,
		validationURL: DefaultValidationURL,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.passwords == nil {
		o.passwords = login.NewPasswordAuthenticator(store)
	}
	if o.totp == nil {
		o.totp = twofa.NewTOTPEngine()
	}
	if o.webauthn == nil {
		o.webauthn = webauthn.NewCeremony(store, webauthn.NewInMemChallengeStore())
	}
	if o.social == nil {
		o.social = externalprovider.NewSocialIdentityResolver()
	}
	if o.mailer == nil {
		o.mailer = notification.NewMailer(notification.NewLogSender(nil))
	}

	token := NewTokenStep(issuer)
	o.loginFlow = NewFlowBuilder("login").
		AddStep(NewPasswordStep(o.passwords)).
		AddStep(&SecondFactorRequirementStep{}).
		AddStep(token).
		AddStep(NewHashUpgradeStep(o.passwords)).
		Build()
	o.authenticateFlow = NewFlowBuilder("authenticate").
		AddStep(NewPasswordStep(o.passwords)).
		AddStep(token).
		AddStep(NewHashUpgradeStep(o.passwords)).
		Build()
	o.socialFlow = NewFlowBuilder("social").
		AddStep(NewSocialAccountStep(store, o.passwords)).
		AddStep(&SecondFactorRequirementStep{}).
		AddStep(token).
		Build()
	o.twoFactorFlow = NewFlowBuilder("2fa").
		AddStep(NewAccountLookupStep(store)).
		AddStep(NewTOTPStep(o.totp)).
		AddStep(token).
		Build()
	o.socialTwoFactorFlow = NewFlowBuilder("social_2fa").
		AddStep(NewAccountLookupStep(store)).
		AddStep(NewTOTPStep(o.totp)).
		AddStep(token).
		Build()
	return o
}

// Wait blocks until pending e-mails have been handed to the mailer.
func (o *LoginOrchestrator) Wait() {
	o.mailWG.Wait()
}

// ValidateEmailFormat rejects addresses that are not of the form local@domain.tld.
func ValidateEmailFormat(email string) error {
	if !emailRegex.MatchString(email) {
		return errors.InvalidInput("invalid email format")
	}
	return nil
}

// CreateUser registers a password account and mails the validation link.
func (o *LoginOrchestrator) CreateUser(ctx context.Context, name, email, password string) (account.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return account.Account{}, errors.InvalidInput("name is required")
	}
	if err := ValidateEmailFormat(email); err != nil {
		return account.Account{}, err
	}
	hash, err := o.passwords.HashPassword(password)
	if err != nil {
		return account.Account{}, err
	}

	created, err := o.store.Create(ctx, account.NewAccount(name, email, hash))
	if err != nil {
		return account.Account{}, err
	}
	slog.Info("Account created", "email", created.Email)
	o.sendValidation(ctx, created)
	return created, nil
}

// CreateAuthenticate registers an account and returns a token for it.
func (o *LoginOrchestrator) CreateAuthenticate(ctx context.Context, name, email, password string) (LoginResult, error) {
	created, err := o.CreateUser(ctx, name, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	return o.complete(created, ChannelBasic)
}

// Authenticate checks the password and always issues a token, ignoring
// the two-factor policy.
func (o *LoginOrchestrator) Authenticate(ctx context.Context, email, password string) (LoginResult, error) {
	return o.authenticateFlow.Execute(ctx, Request{Channel: ChannelBasic, Email: email, Password: password})
}

// Login performs a password login. Accounts whose policy requires a second
// factor get an incomplete result and no token.
func (o *LoginOrchestrator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	return o.loginFlow.Execute(ctx, Request{Channel: ChannelBasic, Email: email, Password: password})
}

// LoginWithSocialProvider signs in a federated identity, creating the local
// account on first sight.
func (o *LoginOrchestrator) LoginWithSocialProvider(ctx context.Context, email, name, provider string) (LoginResult, error) {
	if err := ValidateEmailFormat(email); err != nil {
		return LoginResult{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return LoginResult{}, errors.InvalidInput("name is required")
	}
	if !o.social.Supports(provider) {
		return LoginResult{}, errors.InvalidInput("unsupported provider: " + provider)
	}
	return o.socialFlow.Execute(ctx, Request{
		Channel:  ChannelSocial,
		Email:    email,
		Name:     name,
		Provider: strings.ToLower(provider),
	})
}

// LoginWithSocialToken resolves a provider token and continues as
// LoginWithSocialProvider.
func (o *LoginOrchestrator) LoginWithSocialToken(ctx context.Context, token, provider string) (LoginResult, error) {
	identity, err := o.social.Resolve(ctx, token, provider)
	if err != nil {
		return LoginResult{}, err
	}
	return o.LoginWithSocialProvider(ctx, identity.Email, identity.Name, identity.Provider)
}

// Validate2FACode completes a login that stopped for a second factor.
func (o *LoginOrchestrator) Validate2FACode(ctx context.Context, email, code string) (LoginResult, error) {
	if err := twofa.ValidateCodeFormat(code); err != nil {
		return LoginResult{}, err
	}
	return o.twoFactorFlow.Execute(ctx, Request{Channel: ChannelBasic, Email: email, Code: code})
}

// ValidateSocialLogin2FA completes a social login that stopped for a second
// factor.
func (o *LoginOrchestrator) ValidateSocialLogin2FA(ctx context.Context, email, code string) (LoginResult, error) {
	if err := twofa.ValidateCodeFormat(code); err != nil {
		return LoginResult{}, err
	}
	return o.socialTwoFactorFlow.Execute(ctx, Request{Channel: ChannelSocial, Email: email, Code: code})
}

// GenerateQRCode enrolls the account in TOTP and returns the PNG to scan.
// Calling it again replaces the secret.
func (o *LoginOrchestrator) GenerateQRCode(ctx context.Context, email, password string) ([]byte, error) {
	acct, err := o.passwords.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	secret, err := o.totp.GenerateSecret(acct.Email, o.totpIssuer)
	if err != nil {
		return nil, err
	}
	acct.UsingTwoFactor = true
	acct.TOTPSecret = secret
	if _, err := o.store.Update(ctx, acct.Email, acct); err != nil {
		return nil, err
	}
	slog.Info("Two-factor authentication enabled", "email", acct.Email)

	return o.totp.RenderQR(o.totp.BarcodeURI(secret, acct.Email, o.totpIssuer))
}

// StartWebAuthnRegistration issues creation options for a new credential.
// Only the authenticated owner may add a credential to an account.
func (o *LoginOrchestrator) StartWebAuthnRegistration(ctx context.Context, caller Caller, email, origin string) (*webauthn.CreationResponse, error) {
	if err := authorize(caller, email, false); err != nil {
		return nil, err
	}
	acct, err := o.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return o.webauthn.StartRegistration(ctx, acct, origin)
}

// FinishWebAuthnRegistration verifies the attestation and stores the credential.
func (o *LoginOrchestrator) FinishWebAuthnRegistration(ctx context.Context, caller Caller, email, response, origin, deviceName string) (account.WebAuthnCredential, error) {
	if err := authorize(caller, email, false); err != nil {
		return account.WebAuthnCredential{}, err
	}
	acct, err := o.store.FindByEmail(ctx, email)
	if err != nil {
		return account.WebAuthnCredential{}, err
	}
	return o.webauthn.FinishRegistration(ctx, acct, response, origin, deviceName)
}

// StartWebAuthnAuthentication issues request options over the account's
// credentials.
func (o *LoginOrchestrator) StartWebAuthnAuthentication(ctx context.Context, email string) (*webauthn.RequestResponse, error) {
	if _, err := o.store.FindByEmail(ctx, email); err != nil {
		return nil, err
	}
	creds, err := o.store.FindCredentials(ctx, email)
	if err != nil {
		return nil, err
	}
	return o.webauthn.StartAuthentication(ctx, email, creds)
}

// FinishWebAuthnAuthentication verifies the assertion and issues a token.
func (o *LoginOrchestrator) FinishWebAuthnAuthentication(ctx context.Context, email, response string) (LoginResult, error) {
	acct, err := o.store.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if !o.passwordless && !acct.UsingTwoFactor {
		return LoginResult{}, errors.Unauthorized("two-factor authentication is not enabled")
	}
	creds, err := o.store.FindCredentials(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if _, err := o.webauthn.FinishAuthentication(ctx, email, creds, response); err != nil {
		return LoginResult{}, err
	}
	return o.complete(acct, ChannelBasic)
}

// UpdateUser changes name, email or password and returns a fresh token.
func (o *LoginOrchestrator) UpdateUser(ctx context.Context, caller Caller, req UpdateUserRequest) (LoginResult, error) {
	name := strings.TrimSpace(req.Name)
	changePassword := req.Password != "" || req.NewPassword != ""
	if name == "" && req.NewEmail == "" && !changePassword {
		return LoginResult{}, errors.InvalidInput("no fields provided")
	}
	if changePassword && (req.Password == "" || req.NewPassword == "") {
		return LoginResult{}, errors.InvalidInput("current and new password are both required")
	}
	if req.NewEmail != "" {
		if err := ValidateEmailFormat(req.NewEmail); err != nil {
			return LoginResult{}, err
		}
	}
	if err := authorize(caller, req.Email, true); err != nil {
		return LoginResult{}, err
	}

	acct, err := o.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return LoginResult{}, err
	}

	var newHash string
	if changePassword {
		ok, err := o.passwords.VerifyPassword(req.Password, acct.PasswordHash)
		if err != nil || !ok {
			return LoginResult{}, errors.Unauthorized("current password is incorrect")
		}
		if newHash, err = o.passwords.HashPassword(req.NewPassword); err != nil {
			return LoginResult{}, err
		}
	}

	// Password CAS first: a conflict must leave the profile untouched.
	updated := acct
	if changePassword {
		if err := o.store.ChangePassword(ctx, acct.Email, acct.PasswordHash, newHash); err != nil {
			return LoginResult{}, err
		}
		updated.PasswordHash = newHash
		slog.Info("Password changed", "email", acct.Email)
	}

	emailChanged := req.NewEmail != "" && req.NewEmail != acct.Email
	if name != "" {
		updated.Name = name
	}
	if emailChanged {
		updated.Email = req.NewEmail
		updated.EmailValid = false
		updated.EmailValidationCode = uuid.NewString()
	}
	if updated.Name != acct.Name || emailChanged {
		if updated, err = o.store.Update(ctx, acct.Email, updated); err != nil {
			return LoginResult{}, err
		}
	}
	if emailChanged {
		slog.Info("Email changed", "old", acct.Email, "new", updated.Email)
		o.sendValidation(ctx, updated)
	}
	return o.complete(updated, ChannelBasic)
}

// Update2FASettings sets the per-channel second factor policy.
func (o *LoginOrchestrator) Update2FASettings(ctx context.Context, caller Caller, email string, basic, social bool) (account.Account, error) {
	if err := authorize(caller, email, false); err != nil {
		return account.Account{}, err
	}
	acct, err := o.store.FindByEmail(ctx, email)
	if err != nil {
		return account.Account{}, err
	}
	acct.Require2FAForBasicLogin = basic
	acct.Require2FAForSocialLogin = social
	return o.store.Update(ctx, email, acct)
}

// ValidateEmail marks the email valid when code matches the one mailed.
func (o *LoginOrchestrator) ValidateEmail(ctx context.Context, email, code string) (account.Account, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return account.Account{}, errors.InvalidInput("email and code are required")
	}
	acct, err := o.store.FindByEmail(ctx, email)
	if err != nil {
		return account.Account{}, err
	}
	if subtle.ConstantTimeCompare([]byte(acct.EmailValidationCode), []byte(code)) != 1 {
		return account.Account{}, errors.Unauthorized("invalid validation code")
	}
	if acct.EmailValid {
		return acct, nil
	}
	acct.EmailValid = true
	return o.store.Update(ctx, email, acct)
}

// RecoverPassword replaces the password with a generated one and mails it.
func (o *LoginOrchestrator) RecoverPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.InvalidInput("email is required")
	}
	acct, err := o.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	password, err := login.GenerateRandomPassword()
	if err != nil {
		return errors.InternalWrap(err, "failed to generate password")
	}
	hash, err := o.passwords.HashPassword(password)
	if err != nil {
		return err
	}
	if err := o.store.ChangePassword(ctx, email, acct.PasswordHash, hash); err != nil {
		return err
	}
	slog.Info("Password recovered", "email", email)
	o.sendMail(ctx, "password_reset", email, func(ctx context.Context) error {
		return o.mailer.SendPasswordReset(ctx, email, password)
	})
	return nil
}

// DeleteUser removes the account and its credentials.
func (o *LoginOrchestrator) DeleteUser(ctx context.Context, caller Caller, email string) error {
	if err := authorize(caller, email, true); err != nil {
		return err
	}
	if err := o.store.Delete(ctx, email); err != nil {
		return err
	}
	slog.Info("Account deleted", "email", email, "by", caller.Email)
	return nil
}

// GetUser returns any account. Admin only.
func (o *LoginOrchestrator) GetUser(ctx context.Context, caller Caller, email string) (account.Account, error) {
	if !caller.IsAdmin() {
		return account.Account{}, errors.Forbidden("admin role required")
	}
	return o.store.FindByEmail(ctx, email)
}

// ListUsers returns every account. Admin only.
func (o *LoginOrchestrator) ListUsers(ctx context.Context, caller Caller) ([]account.Account, error) {
	if !caller.IsAdmin() {
		return nil, errors.Forbidden("admin role required")
	}
	return o.store.List(ctx)
}

// ParseToken verifies an access token issued by this service.
func (o *LoginOrchestrator) ParseToken(token string) (*tokengenerator.Claims, error) {
	return o.issuer.Parse(token)
}

func (o *LoginOrchestrator) complete(acct account.Account, channel Channel) (LoginResult, error) {
	token, expiresAt, err := o.issuer.Issue(acct)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, Account: acct, Channel: channel}, nil
}

func authorize(caller Caller, email string, allowAdmin bool) error {
	if caller.Email == "" {
		return errors.Unauthorized("authentication required")
	}
	if caller.Email == email {
		return nil
	}
	if allowAdmin && caller.IsAdmin() {
		return nil
	}
	return errors.Forbidden("not allowed to modify another account")
}

func (o *LoginOrchestrator) sendValidation(ctx context.Context, acct account.Account) {
	link := notification.ValidationLink(o.validationURL, acct.Email, acct.EmailValidationCode)
	o.sendMail(ctx, "validation", acct.Email, func(ctx context.Context) error {
		return o.mailer.SendValidation(ctx, acct.Email, link)
	})
}

// sendMail delivers in the background; failures are logged only.
func (o *LoginOrchestrator) sendMail(ctx context.Context, kind, email string, send func(context.Context) error) {
	o.mailWG.Add(1)
	go func() {
		defer o.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			slog.Error("Failed to send email", "kind", kind, "email", email, "err", err)
		}
	}()
}
