package webauthn

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
)

const DefaultRPName = "orion-users"

// Ceremony runs registration and authentication against a CredentialStore.
type Ceremony struct {
	store        account.CredentialStore
	challenges   ChallengeStore
	rpName       string
	challengeTTL time.Duration
	now          func() time.Time
}

type Option func(*Ceremony)

// WithRPName sets the relying party display name.
func WithRPName(name string) Option {
	return func(c *Ceremony) {
		if name != "" {
			c.rpName = name
		}
	}
}

func WithChallengeTTL(ttl time.Duration) Option {
	return func(c *Ceremony) {
		if ttl > 0 {
			c.challengeTTL = ttl
		}
	}
}

func NewCeremony(store account.CredentialStore, challenges ChallengeStore, opts ...Option) *Ceremony {
	c := &Ceremony{
		store:        store,
		challenges:   challenges,
		rpName:       DefaultRPName,
		challengeTTL: DefaultChallengeTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Ceremony) newChallenge(ctx context.Context, email string, kind ChallengeKind, rpID string) (Challenge, error) {
	value, err := newChallengeValue()
	if err != nil {
		return Challenge{}, errors.InternalWrap(err, "failed to generate challenge")
	}
	ch := Challenge{
		Value:     value,
		Email:     email,
		Kind:      kind,
		RPID:      rpID,
		CreatedAt: c.now().UTC(),
	}
	if err := c.challenges.Save(ctx, ch, c.challengeTTL); err != nil {
		slog.Error("Failed to save webauthn challenge", "email", email, "kind", kind, "err", err)
		return Challenge{}, err
	}
	return ch, nil
}

func (c *Ceremony) consumeChallenge(ctx context.Context, email string, kind ChallengeKind) (Challenge, error) {
	ch, err := c.challenges.Consume(ctx, email, kind)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return Challenge{}, errors.Unauthorized("no pending WebAuthn challenge")
		}
		return Challenge{}, err
	}
	return ch, nil
}

// StartRegistration issues creation options for acct.
func (c *Ceremony) StartRegistration(ctx context.Context, acct account.Account, origin string) (*CreationResponse, error) {
	rpID := ExtractRpID(origin)
	ch, err := c.newChallenge(ctx, acct.Email, KindRegistration, rpID)
	if err != nil {
		return nil, err
	}

	displayName := acct.Name
	if displayName == "" {
		displayName = acct.Email
	}
	opts := CreationOptions{
		RP: RelyingParty{Name: c.rpName, ID: rpID},
		User: UserEntity{
			ID:          base64.RawURLEncoding.EncodeToString([]byte(acct.Email)),
			Name:        acct.Email,
			DisplayName: displayName,
		},
		Challenge: ch.Value,
		PubKeyCredParams: pubKeyCredParams(),
		AuthenticatorSelection: AuthenticatorSelection{
			AuthenticatorAttachment: "platform",
			UserVerification:        "preferred",
		},
		Timeout:     DefaultTimeoutMillis,
		Attestation: "none",
	}
	return &CreationResponse{Options: opts, Challenge: ch.Value}, nil
}

// FinishRegistration verifies the browser's creation response and stores
// the attested COSE public key with counter 0.
func (c *Ceremony) FinishRegistration(ctx context.Context, acct account.Account, response, origin, deviceName string) (account.WebAuthnCredential, error) {
	if strings.TrimSpace(response) == "" || strings.TrimSpace(origin) == "" {
		return account.WebAuthnCredential{}, errors.InvalidInput("registration response and origin are required")
	}
	fqOrigin, err := protocol.FullyQualifiedOrigin(origin)
	if err != nil {
		return account.WebAuthnCredential{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed origin")
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes([]byte(response))
	if err != nil {
		return account.WebAuthnCredential{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed registration response")
	}

	ch, err := c.consumeChallenge(ctx, acct.Email, KindRegistration)
	if err != nil {
		return account.WebAuthnCredential{}, err
	}
	if ExtractRpID(origin) != ch.RPID {
		return account.WebAuthnCredential{}, errors.Unauthorized("origin mismatch")
	}

	if _, err := parsed.Verify(ch.Value, false, true, ch.RPID, []string{fqOrigin}, nil,
		protocol.TopOriginIgnoreVerificationMode, nil, credentialParameters()); err != nil {
		slog.Warn("WebAuthn registration rejected", "email", acct.Email, "err", err)
		return account.WebAuthnCredential{}, errors.Unauthorized("invalid WebAuthn registration")
	}

	attested := parsed.Response.AttestationObject.AuthData.AttData
	credentialID := base64.RawURLEncoding.EncodeToString(attested.CredentialID)
	if credentialID != parsed.ID {
		return account.WebAuthnCredential{}, errors.Unauthorized("credential id mismatch")
	}
	var key webauthncose.PublicKeyData
	if err := webauthncbor.Unmarshal(attested.CredentialPublicKey, &key); err != nil {
		return account.WebAuthnCredential{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "unsupported public key")
	}

	if strings.TrimSpace(deviceName) == "" {
		deviceName = account.DefaultDeviceName
	}
	cred, err := c.store.SaveCredential(ctx, account.WebAuthnCredential{
		AccountEmail: acct.Email,
		CredentialID: credentialID,
		PublicKey:    attested.CredentialPublicKey,
		Algorithm:    int(key.Algorithm),
		Counter:      0,
		Origin:       origin,
		DeviceName:   deviceName,
	})
	if err != nil {
		return account.WebAuthnCredential{}, err
	}
	slog.Info("WebAuthn credential registered", "email", acct.Email, "device", cred.DeviceName)
	return cred, nil
}

// StartAuthentication issues request options over the account's credentials.
func (c *Ceremony) StartAuthentication(ctx context.Context, email string, creds []account.WebAuthnCredential) (*RequestResponse, error) {
	if len(creds) == 0 {
		return nil, errors.NotFound("WebAuthn credentials", email)
	}
	rpID := ExtractRpID(creds[0].Origin)
	ch, err := c.newChallenge(ctx, email, KindAuthentication, rpID)
	if err != nil {
		return nil, err
	}

	allow := make([]CredentialDescriptor, 0, len(creds))
	for _, cred := range creds {
		allow = append(allow, CredentialDescriptor{Type: publicKeyType, ID: cred.CredentialID})
	}
	opts := RequestOptions{
		Challenge:        ch.Value,
		RPID:             rpID,
		AllowCredentials: allow,
		UserVerification: "preferred",
		Timeout:          DefaultTimeoutMillis,
	}
	return &RequestResponse{Options: opts, Challenge: ch.Value}, nil
}

// FinishAuthentication verifies an assertion and advances the credential
// counter. It returns the credential with its new counter.
func (c *Ceremony) FinishAuthentication(ctx context.Context, email string, creds []account.WebAuthnCredential, response string) (account.WebAuthnCredential, error) {
	if len(creds) == 0 {
		return account.WebAuthnCredential{}, errors.NotFound("WebAuthn credentials", email)
	}
	if strings.TrimSpace(response) == "" {
		return account.WebAuthnCredential{}, errors.InvalidInput("authentication response is required")
	}

	parsed, err := protocol.ParseCredentialRequestResponseBytes([]byte(response))
	if err != nil {
		return account.WebAuthnCredential{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed authentication response")
	}

	cred, ok := selectCredential(creds, parsed.ID)
	if !ok {
		return account.WebAuthnCredential{}, errors.Unauthorized("unknown credential")
	}

	ch, err := c.consumeChallenge(ctx, email, KindAuthentication)
	if err != nil {
		return account.WebAuthnCredential{}, err
	}
	fqOrigin, err := protocol.FullyQualifiedOrigin(cred.Origin)
	if err != nil {
		return account.WebAuthnCredential{}, errors.InternalWrap(err, "stored credential origin is malformed")
	}

	if err := parsed.Verify(ch.Value, ExtractRpID(cred.Origin), []string{fqOrigin}, nil,
		protocol.TopOriginIgnoreVerificationMode, "", false, true, cred.PublicKey); err != nil {
		slog.Warn("WebAuthn assertion rejected", "email", email, "err", err)
		return account.WebAuthnCredential{}, errors.Unauthorized("invalid WebAuthn assertion")
	}

	next, err := nextCounter(cred.Counter, parsed.Response.AuthenticatorData.Counter)
	if err != nil {
		return account.WebAuthnCredential{}, err
	}
	if err := c.store.UpdateCredentialCounter(ctx, cred.CredentialID, cred.Counter, next); err != nil {
		return account.WebAuthnCredential{}, err
	}
	cred.Counter = next
	return cred, nil
}

// nextCounter applies the counter rule: a non-zero asserted counter must
// exceed the stored one; authenticators that always report 0 get the
// stored value advanced by one.
func nextCounter(stored, asserted uint32) (uint32, error) {
	if asserted == 0 {
		return stored + 1, nil
	}
	if asserted <= stored {
		return 0, errors.ReplayedAssertion("signature counter did not increase")
	}
	return asserted, nil
}

func selectCredential(creds []account.WebAuthnCredential, id string) (account.WebAuthnCredential, bool) {
	for _, cred := range creds {
		if cred.CredentialID == id {
			return cred, true
		}
	}
	return account.WebAuthnCredential{}, false
}

func credentialParameters() []protocol.CredentialParameter {
	return []protocol.CredentialParameter{
		{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
		{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
	}
}

func pubKeyCredParams() []CredentialParameter {
	params := credentialParameters()
	out := make([]CredentialParameter, 0, len(params))
	for _, p := range params {
		out = append(out, CredentialParameter{Type: string(p.Type), Alg: int(p.Algorithm)})
	}
	return out
}
