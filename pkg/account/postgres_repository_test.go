package account

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresStore(t *testing.T) (*PostgresCredentialStore, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mfa_db"),
		postgres.WithUsername("mfa"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	db := stdlib.OpenDBFromPool(pool)
	require.NoError(t, Migrate(ctx, db))

	cleanup := func() {
		db.Close()
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			slog.Error("Failed to terminate container", "err", err)
		}
	}
	return NewPostgresCredentialStore(pool), cleanup
}

func TestPostgresCredentialStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}

	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.Create(ctx, NewAccount("Orion", "orion@test.com", "hash"))
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, created.Roles)

	t.Run("duplicate email and name", func(t *testing.T) {
		_, err := store.Create(ctx, NewAccount("Other", "orion@test.com", "hash"))
		assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
		_, err = store.Create(ctx, NewAccount("Orion", "other@test.com", "hash"))
		assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
	})

	t.Run("credential counter CAS", func(t *testing.T) {
		_, err := store.SaveCredential(ctx, WebAuthnCredential{
			AccountEmail: "orion@test.com",
			CredentialID: "cred-1",
			PublicKey:    []byte{1, 2, 3},
			Algorithm:    AlgES256,
			Origin:       "https://example.com",
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]error, 10)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = store.UpdateCredentialCounter(ctx, "cred-1", 0, 1)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
			} else {
				assert.True(t, errors.IsCode(err, errors.ErrCodeReplayedAssertion))
			}
		}
		assert.Equal(t, 1, wins)

		creds, err := store.FindCredentials(ctx, "orion@test.com")
		require.NoError(t, err)
		require.Len(t, creds, 1)
		assert.Equal(t, uint32(1), creds[0].Counter)
		assert.Equal(t, DefaultDeviceName, creds[0].DeviceName)
	})

	t.Run("email change cascades to credentials", func(t *testing.T) {
		acct, err := store.FindByEmail(ctx, "orion@test.com")
		require.NoError(t, err)
		acct.Email = "orion@new.com"
		_, err = store.Update(ctx, "orion@test.com", acct)
		require.NoError(t, err)

		creds, err := store.FindCredentials(ctx, "orion@new.com")
		require.NoError(t, err)
		assert.Len(t, creds, 1)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "orion@new.com"))
		creds, err := store.FindCredentials(ctx, "orion@new.com")
		require.NoError(t, err)
		assert.Empty(t, creds)

		err = store.Delete(ctx, "orion@new.com")
		assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	})
}
