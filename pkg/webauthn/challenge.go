package webauthn

import (
	"context"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/tendant/simple-mfa/pkg/errors"
)

// ChallengeKind binds a challenge to one ceremony.
type ChallengeKind string

const (
	KindRegistration   ChallengeKind = "registration"
	KindAuthentication ChallengeKind = "authentication"

	DefaultChallengeTTL = 2 * time.Minute
)

// Challenge is a pending ceremony for one account.
type Challenge struct {
	Value     string        `json:"value"`
	Email     string        `json:"email"`
	Kind      ChallengeKind `json:"kind"`
	RPID      string        `json:"rp_id"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChallengeStore keeps at most one pending challenge per (email, kind).
// Consume returns ErrCodeNotFound when nothing is pending or it expired.
type ChallengeStore interface {
	Save(ctx context.Context, challenge Challenge, ttl time.Duration) error
	Consume(ctx context.Context, email string, kind ChallengeKind) (Challenge, error)
}

func newChallengeValue() (string, error) {
	value, err := protocol.CreateChallenge()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// InMemChallengeStore is a ChallengeStore for a single process.
type InMemChallengeStore struct {
	mu      sync.Mutex
	entries map[string]inMemChallenge
	now     func() time.Time
}

type inMemChallenge struct {
	challenge Challenge
	expiresAt time.Time
}

func NewInMemChallengeStore() *InMemChallengeStore {
	return &InMemChallengeStore{
		entries: make(map[string]inMemChallenge),
		now:     time.Now,
	}
}

func challengeKey(email string, kind ChallengeKind) string {
	return string(kind) + ":" + email
}

func (s *InMemChallengeStore) Save(ctx context.Context, challenge Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[challengeKey(challenge.Email, challenge.Kind)] = inMemChallenge{
		challenge: challenge,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (s *InMemChallengeStore) Consume(ctx context.Context, email string, kind ChallengeKind) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(email, kind)
	e, ok := s.entries[key]
	if !ok {
		return Challenge{}, errors.NotFound("challenge", string(kind))
	}
	delete(s.entries, key)
	if s.now().After(e.expiresAt) {
		return Challenge{}, errors.NotFound("challenge", string(kind))
	}
	return e.challenge, nil
}
