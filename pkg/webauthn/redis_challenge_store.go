package webauthn

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-mfa/pkg/errors"
)

const redisChallengePrefix = "webauthn:challenge"

// RedisChallengeStore shares pending challenges between instances. Expiry
// is left to the key TTL and consumption is a single GETDEL.
type RedisChallengeStore struct {
	redis *redis.Client
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{redis: client}
}

func (s *RedisChallengeStore) key(email string, kind ChallengeKind) string {
	return redisChallengePrefix + ":" + challengeKey(email, kind)
}

func (s *RedisChallengeStore) Save(ctx context.Context, challenge Challenge, ttl time.Duration) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return errors.InternalWrap(err, "failed to encode challenge")
	}
	if err := s.redis.Set(ctx, s.key(challenge.Email, challenge.Kind), data, ttl).Err(); err != nil {
		return errors.InternalWrap(err, "challenge backend unavailable")
	}
	return nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, email string, kind ChallengeKind) (Challenge, error) {
	data, err := s.redis.GetDel(ctx, s.key(email, kind)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return Challenge{}, errors.NotFound("challenge", string(kind))
		}
		return Challenge{}, errors.InternalWrap(err, "challenge backend unavailable")
	}

	var challenge Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return Challenge{}, errors.InternalWrap(err, "failed to decode challenge")
	}
	return challenge, nil
}
