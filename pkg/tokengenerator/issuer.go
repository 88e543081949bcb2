package tokengenerator

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
)

const (
	DefaultIssuer = "orion-users"
	DefaultExpiry = time.Hour
)

// TokenIssuer mints access tokens for authenticated accounts.
type TokenIssuer struct {
	generator TokenGenerator
	issuer    string
	expiry    time.Duration
	now       func() time.Time
}

type Option func(*TokenIssuer)

func WithIssuer(issuer string) Option {
	return func(i *TokenIssuer) {
		if issuer != "" {
			i.issuer = issuer
		}
	}
}

func WithExpiry(expiry time.Duration) Option {
	return func(i *TokenIssuer) {
		if expiry > 0 {
			i.expiry = expiry
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

func NewTokenIssuer(generator TokenGenerator, opts ...Option) *TokenIssuer {
	i := &TokenIssuer{
		generator: generator,
		issuer:    DefaultIssuer,
		expiry:    DefaultExpiry,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs a token for acct. sub and upn carry the email, groups the
// account roles and c_hash the account's external hash.
func (i *TokenIssuer) Issue(acct account.Account) (string, time.Time, error) {
	now := i.now().UTC()
	claims := Claims{
		Email:  acct.Email,
		UPN:    acct.Email,
		Groups: acct.RoleList(),
		CHash:  acct.Hash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   acct.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
			ID:        uuid.NewString(),
		},
	}
	token, err := i.generator.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.InternalWrap(err, "failed to sign token")
	}
	return token, claims.ExpiresAt.Time, nil
}

// Parse verifies tokenStr and returns its claims.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	claims, err := i.generator.Parse(tokenStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}
	return claims, nil
}
