package account

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/errors"
)

func TestInMemCredentialStore_CreateAndFind(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	created, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, created.Roles)
	assert.True(t, created.Require2FAForBasicLogin)
	assert.True(t, created.Require2FAForSocialLogin)
	assert.False(t, created.EmailValid)

	found, err := store.FindByEmail(ctx, "orion@test.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = store.FindByEmail(ctx, "ORION@test.com")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestInMemCredentialStore_CreateConflicts(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	_, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)

	_, err = store.Create(ctx, NewAccount("Other", "orion@test.com", "hash"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	_, err = store.Create(ctx, NewAccount("Orion", "other@test.com", "hash"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestInMemCredentialStore_RejectsSecretWithoutTwoFactor(t *testing.T) {
	store := NewInMemCredentialStore()
	acct := NewAccount("Orion", "orion@test.com", "hash")
	acct.TOTPSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	_, err := store.Create(context.Background(), acct)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestInMemCredentialStore_UpdateRekeysCredentials(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	acct, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	_, err = store.SaveCredential(ctx, WebAuthnCredential{AccountEmail: acct.Email, CredentialID: "cred-1", Algorithm: AlgES256})
	require.NoError(t, err)

	acct.Email = "orion@new.com"
	_, err = store.Update(ctx, "orion@test.com", acct)
	require.NoError(t, err)

	_, err = store.FindByEmail(ctx, "orion@test.com")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	creds, err := store.FindCredentials(ctx, "orion@new.com")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, DefaultDeviceName, creds[0].DeviceName)
}

func TestInMemCredentialStore_UpdateEmailInUse(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	a, err := store.Create(ctx, NewAccount("A", "a@test.com", "hash"))
	require.NoError(t, err)
	_, err = store.Create(ctx, NewAccount("B", "b@test.com", "hash"))
	require.NoError(t, err)

	a.Email = "b@test.com"
	_, err = store.Update(ctx, "a@test.com", a)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestInMemCredentialStore_ChangePassword(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	_, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "old"))
	require.NoError(t, err)

	err = store.ChangePassword(ctx, "orion@test.com", "wrong", "new")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	require.NoError(t, store.ChangePassword(ctx, "orion@test.com", "old", "new"))
	acct, err := store.FindByEmail(ctx, "orion@test.com")
	require.NoError(t, err)
	assert.Equal(t, "new", acct.PasswordHash)
}

func TestInMemCredentialStore_DeleteCascades(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	_, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	_, err = store.SaveCredential(ctx, WebAuthnCredential{AccountEmail: "orion@test.com", CredentialID: "cred-1"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "orion@test.com"))
	creds, err := store.FindCredentials(ctx, "orion@test.com")
	require.NoError(t, err)
	assert.Empty(t, creds)

	// the name is free again
	_, err = store.Create(ctx, NewAccount("Orion", "orion2@test.com", "hash"))
	assert.NoError(t, err)
}

func TestInMemCredentialStore_CounterCompareAndSwap(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	_, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	_, err = store.SaveCredential(ctx, WebAuthnCredential{AccountEmail: "orion@test.com", CredentialID: "cred-1", Counter: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins, replays int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.UpdateCredentialCounter(ctx, "cred-1", 5, 6)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.IsCode(err, errors.ErrCodeReplayedAssertion):
				atomic.AddInt32(&replays, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(19), replays)

	creds, err := store.FindCredentials(ctx, "orion@test.com")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), creds[0].Counter)
}

func TestInMemCredentialStore_SaveCredentialDuplicate(t *testing.T) {
	store := NewInMemCredentialStore()
	ctx := context.Background()

	_, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	_, err = store.SaveCredential(ctx, WebAuthnCredential{AccountEmail: "orion@test.com", CredentialID: "cred-1"})
	require.NoError(t, err)
	_, err = store.SaveCredential(ctx, WebAuthnCredential{AccountEmail: "orion@test.com", CredentialID: "cred-1"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	_, err = store.SaveCredential(ctx, WebAuthnCredential{AccountEmail: "ghost@test.com", CredentialID: "cred-2"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}
