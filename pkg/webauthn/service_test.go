package webauthn

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/webauthn/webauthntest"
)

const testOrigin = "https://example.com:8443"

type fixture struct {
	store    *account.InMemCredentialStore
	ceremony *Ceremony
	acct     account.Account
	authn    *webauthntest.Authenticator
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := account.NewInMemCredentialStore()
	acct, err := store.Create(ctx, account.NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	authn, err := webauthntest.New(testOrigin)
	require.NoError(t, err)
	return &fixture{
		store:    store,
		ceremony: NewCeremony(store, NewInMemChallengeStore(), WithRPName("Orion")),
		acct:     acct,
		authn:    authn,
		ctx:      ctx,
	}
}

func (f *fixture) register(t *testing.T) account.WebAuthnCredential {
	t.Helper()
	start, err := f.ceremony.StartRegistration(f.ctx, f.acct, testOrigin)
	require.NoError(t, err)
	resp, err := f.authn.Create(start.Challenge)
	require.NoError(t, err)
	cred, err := f.ceremony.FinishRegistration(f.ctx, f.acct, resp, testOrigin, "")
	require.NoError(t, err)
	return cred
}

func (f *fixture) credentials(t *testing.T) []account.WebAuthnCredential {
	t.Helper()
	creds, err := f.store.FindCredentials(f.ctx, f.acct.Email)
	require.NoError(t, err)
	return creds
}

func TestStartRegistration_Options(t *testing.T) {
	f := newFixture(t)
	start, err := f.ceremony.StartRegistration(f.ctx, f.acct, testOrigin)
	require.NoError(t, err)

	opts := start.Options
	assert.Equal(t, RelyingParty{Name: "Orion", ID: "example.com"}, opts.RP)
	assert.Equal(t, "b3Jpb25AdGVzdC5jb20", opts.User.ID)
	assert.Equal(t, "orion@test.com", opts.User.Name)
	assert.Equal(t, "Orion", opts.User.DisplayName)
	assert.Equal(t, start.Challenge, opts.Challenge)
	assert.Len(t, opts.Challenge, 43)
	assert.Equal(t, []CredentialParameter{{"public-key", -7}, {"public-key", -257}}, opts.PubKeyCredParams)
	assert.Equal(t, "platform", opts.AuthenticatorSelection.AuthenticatorAttachment)
	assert.Equal(t, "preferred", opts.AuthenticatorSelection.UserVerification)
	assert.Equal(t, 60000, opts.Timeout)
	assert.Equal(t, "none", opts.Attestation)
}

func TestStartRegistration_UnparseableOrigin(t *testing.T) {
	f := newFixture(t)
	start, err := f.ceremony.StartRegistration(f.ctx, f.acct, "")
	require.NoError(t, err)
	assert.Equal(t, "localhost", start.Options.RP.ID)
}

func TestFinishRegistration(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t)

	assert.Equal(t, f.authn.CredentialID, cred.CredentialID)
	assert.Equal(t, uint32(0), cred.Counter)
	assert.Equal(t, account.DefaultDeviceName, cred.DeviceName)
	assert.Equal(t, testOrigin, cred.Origin)
	assert.Equal(t, account.AlgES256, cred.Algorithm)
	assert.NotEmpty(t, cred.PublicKey)
	assert.Len(t, f.credentials(t), 1)
}

func TestFinishRegistration_Rejections(t *testing.T) {
	t.Run("missing origin", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ceremony.FinishRegistration(f.ctx, f.acct, "{}", "", "")
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
	})

	t.Run("malformed response", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ceremony.StartRegistration(f.ctx, f.acct, testOrigin)
		require.NoError(t, err)
		_, err = f.ceremony.FinishRegistration(f.ctx, f.acct, `{"id":"abc","type":"public-key","response":{}}`, testOrigin, "")
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
	})

	t.Run("no pending challenge", func(t *testing.T) {
		f := newFixture(t)
		resp, err := f.authn.Create("AAAA")
		require.NoError(t, err)
		_, err = f.ceremony.FinishRegistration(f.ctx, f.acct, resp, testOrigin, "")
		assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	})

	t.Run("wrong challenge", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ceremony.StartRegistration(f.ctx, f.acct, testOrigin)
		require.NoError(t, err)
		resp, err := f.authn.Create("c29tZXRoaW5nLWVsc2U")
		require.NoError(t, err)
		_, err = f.ceremony.FinishRegistration(f.ctx, f.acct, resp, testOrigin, "")
		assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	})

	t.Run("origin mismatch", func(t *testing.T) {
		f := newFixture(t)
		start, err := f.ceremony.StartRegistration(f.ctx, f.acct, testOrigin)
		require.NoError(t, err)
		resp, err := f.authn.Create(start.Challenge)
		require.NoError(t, err)
		_, err = f.ceremony.FinishRegistration(f.ctx, f.acct, resp, "https://evil.example", "")
		assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	})

	t.Run("challenge is single use", func(t *testing.T) {
		f := newFixture(t)
		start, err := f.ceremony.StartRegistration(f.ctx, f.acct, testOrigin)
		require.NoError(t, err)
		resp, err := f.authn.Create(start.Challenge)
		require.NoError(t, err)
		_, err = f.ceremony.FinishRegistration(f.ctx, f.acct, resp, testOrigin, "Laptop")
		require.NoError(t, err)
		_, err = f.ceremony.FinishRegistration(f.ctx, f.acct, resp, testOrigin, "Laptop")
		assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	})
}

func TestStartAuthentication_NoCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, nil, "{}")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestAuthentication_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	for i := 1; i <= 3; i++ {
		creds := f.credentials(t)
		start, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
		require.NoError(t, err)
		assert.Equal(t, "example.com", start.Options.RPID)
		require.Len(t, start.Options.AllowCredentials, 1)
		assert.Equal(t, f.authn.CredentialID, start.Options.AllowCredentials[0].ID)

		resp, err := f.authn.Get(start.Challenge, start.Options.RPID)
		require.NoError(t, err)
		cred, err := f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), cred.Counter)
	}
}

func TestAuthentication_ZeroCounterAdvancesStored(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	f.authn.FixedCounter = true

	for i := 1; i <= 2; i++ {
		creds := f.credentials(t)
		start, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
		require.NoError(t, err)
		resp, err := f.authn.Get(start.Challenge, start.Options.RPID)
		require.NoError(t, err)
		_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(2), f.credentials(t)[0].Counter)
}

func TestAuthentication_RejectsNonIncreasingCounter(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	creds := f.credentials(t)
	start, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
	require.NoError(t, err)
	resp, err := f.authn.GetWithCounter(start.Challenge, start.Options.RPID, 5)
	require.NoError(t, err)
	_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
	require.NoError(t, err)

	creds = f.credentials(t)
	start, err = f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
	require.NoError(t, err)
	resp, err = f.authn.GetWithCounter(start.Challenge, start.Options.RPID, 5)
	require.NoError(t, err)
	_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReplayedAssertion))
	assert.Equal(t, uint32(5), f.credentials(t)[0].Counter)
}

func TestAuthentication_RejectsBadSignatureAndRPID(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	creds := f.credentials(t)

	start, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
	require.NoError(t, err)
	resp, err := f.authn.Get(start.Challenge, "other.com")
	require.NoError(t, err)
	_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	other, err := webauthntest.New(testOrigin)
	require.NoError(t, err)
	other.CredentialID = f.authn.CredentialID
	start, err = f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
	require.NoError(t, err)
	resp, err = other.Get(start.Challenge, start.Options.RPID)
	require.NoError(t, err)
	_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	assert.Equal(t, uint32(0), f.credentials(t)[0].Counter)
}

func TestAuthentication_RejectsUnknownCredential(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	creds := f.credentials(t)

	stranger, err := webauthntest.New(testOrigin)
	require.NoError(t, err)
	start, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
	require.NoError(t, err)
	resp, err := stranger.Get(start.Challenge, start.Options.RPID)
	require.NoError(t, err)
	_, err = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}

func TestAuthentication_ConcurrentFinishAcceptsOne(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	creds := f.credentials(t)

	start, err := f.ceremony.StartAuthentication(f.ctx, f.acct.Email, creds)
	require.NoError(t, err)
	resp, err := f.authn.Get(start.Challenge, start.Options.RPID)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.ceremony.FinishAuthentication(f.ctx, f.acct.Email, creds, resp)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range results {
		if err == nil {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, uint32(accepted), f.credentials(t)[0].Counter)
}

func TestNextCounter(t *testing.T) {
	next, err := nextCounter(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), next)

	next, err = nextCounter(3, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), next)

	_, err = nextCounter(7, 7)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReplayedAssertion))
	_, err = nextCounter(7, 2)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReplayedAssertion))
}
