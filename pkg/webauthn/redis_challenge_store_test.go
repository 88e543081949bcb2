package webauthn

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/errors"
)

func newRedisStore(t *testing.T) (*RedisChallengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisChallengeStore(client), mr
}

func TestRedisChallengeStore_ConsumeOnce(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	ch := Challenge{Value: "abc", Email: "orion@test.com", Kind: KindRegistration, RPID: "example.com"}
	require.NoError(t, store.Save(ctx, ch, time.Minute))

	got, err := store.Consume(ctx, "orion@test.com", KindRegistration)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Value)
	assert.Equal(t, "example.com", got.RPID)

	_, err = store.Consume(ctx, "orion@test.com", KindRegistration)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestRedisChallengeStore_KindsAreSeparate(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Challenge{Value: "reg", Email: "orion@test.com", Kind: KindRegistration}, time.Minute))

	_, err := store.Consume(ctx, "orion@test.com", KindAuthentication)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestRedisChallengeStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Challenge{Value: "abc", Email: "orion@test.com", Kind: KindAuthentication}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Consume(ctx, "orion@test.com", KindAuthentication)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestInMemChallengeStore_Expiry(t *testing.T) {
	store := NewInMemChallengeStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Challenge{Value: "abc", Email: "orion@test.com", Kind: KindAuthentication}, time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := store.Consume(ctx, "orion@test.com", KindAuthentication)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}
