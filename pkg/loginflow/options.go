package loginflow

import (
	"github.com/tendant/simple-mfa/pkg/externalprovider"
	"github.com/tendant/simple-mfa/pkg/login"
	"github.com/tendant/simple-mfa/pkg/notification"
	"github.com/tendant/simple-mfa/pkg/twofa"
	"github.com/tendant/simple-mfa/pkg/webauthn"
)

type Option func(*LoginOrchestrator)

func WithPasswordAuthenticator(p *login.PasswordAuthenticator) Option {
	return func(o *LoginOrchestrator) {
		o.passwords = p
	}
}

func WithTOTPEngine(e *twofa.TOTPEngine) Option {
	return func(o *LoginOrchestrator) {
		o.totp = e
	}
}

// WithTOTPIssuer sets the issuer label shown by authenticator apps.
func WithTOTPIssuer(issuer string) Option {
	return func(o *LoginOrchestrator) {
		if issuer != "" {
			o.totpIssuer = issuer
		}
	}
}

func WithWebAuthnCeremony(c *webauthn.Ceremony) Option {
	return func(o *LoginOrchestrator) {
		o.webauthn = c
	}
}

// WithPasswordlessWebAuthn lets a WebAuthn assertion complete a login for
// accounts without TOTP enrollment.
func WithPasswordlessWebAuthn(enabled bool) Option {
	return func(o *LoginOrchestrator) {
		o.passwordless = enabled
	}
}

func WithSocialIdentityResolver(r *externalprovider.SocialIdentityResolver) Option {
	return func(o *LoginOrchestrator) {
		o.social = r
	}
}

func WithMailer(m notification.Mailer) Option {
	return func(o *LoginOrchestrator) {
		o.mailer = m
	}
}

// WithValidationURL sets the base of the link mailed for email validation.
func WithValidationURL(url string) Option {
	return func(o *LoginOrchestrator) {
		if url != "" {
			o.validationURL = url
		}
	}
}
