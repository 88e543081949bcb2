package externalprovider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-mfa/pkg/errors"
)

// Identity is what a provider token proves.
type Identity struct {
	Email    string
	Name     string
	Provider string
}

// SocialIdentityResolver resolves provider tokens to identities.
type SocialIdentityResolver struct {
	providers map[string]Provider
	client    ProviderUserInfoClient
}

type Option func(*SocialIdentityResolver)

// WithProvider registers or replaces a provider.
func WithProvider(p Provider) Option {
	return func(r *SocialIdentityResolver) {
		r.providers[strings.ToLower(p.ID)] = p
	}
}

func WithUserInfoClient(client ProviderUserInfoClient) Option {
	return func(r *SocialIdentityResolver) {
		r.client = client
	}
}

func NewSocialIdentityResolver(opts ...Option) *SocialIdentityResolver {
	r := &SocialIdentityResolver{
		providers: make(map[string]Provider),
	}
	for _, p := range DefaultProviders() {
		r.providers[p.ID] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = NewHTTPUserInfoClient()
	}
	return r
}

// Supports reports whether provider is registered.
func (r *SocialIdentityResolver) Supports(provider string) bool {
	_, ok := r.providers[strings.ToLower(provider)]
	return ok
}

// Resolve returns the identity behind token.
func (r *SocialIdentityResolver) Resolve(ctx context.Context, token, provider string) (Identity, error) {
	p, ok := r.providers[strings.ToLower(provider)]
	if !ok {
		return Identity{}, errors.InvalidInput(fmt.Sprintf("unsupported provider: %s", provider))
	}

	token = NormalizeToken(token)
	if token == "" {
		return Identity{}, errors.ProviderLookupFailed(fmt.Errorf("token is empty"))
	}

	var claims map[string]interface{}
	if looksLikeJWT(token) {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
		if err != nil {
			return Identity{}, errors.ProviderLookupFailed(fmt.Errorf("failed to decode identity token: %w", err))
		}
		claims = parsed.Claims.(jwt.MapClaims)
	} else {
		if p.UserInfoURL == "" {
			return Identity{}, errors.ProviderLookupFailed(fmt.Errorf("provider %s requires an identity token", p.ID))
		}
		info, err := r.client.FetchUserInfo(ctx, p.UserInfoURL, token)
		if err != nil {
			slog.Warn("Provider user info lookup failed", "provider", p.ID, "err", err)
			return Identity{}, errors.ProviderLookupFailed(err)
		}
		claims = info
	}

	identity, err := identityFromClaims(claims)
	if err != nil {
		return Identity{}, errors.ProviderLookupFailed(err)
	}
	identity.Provider = p.ID
	return identity, nil
}

// NormalizeToken trims the token and drops any embedded whitespace.
func NormalizeToken(token string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, token)
}

// looksLikeJWT reports whether token has three segments and a payload that
// decodes to a JSON object. Opaque access tokens may also contain dots.
func looksLikeJWT(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return false
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return false
	}
	var claims map[string]interface{}
	return json.Unmarshal(payload, &claims) == nil
}

func identityFromClaims(claims map[string]interface{}) (Identity, error) {
	email := stringClaim(claims, "email")
	if email == "" {
		return Identity{}, fmt.Errorf("email not found in provider response")
	}
	return Identity{Email: email, Name: displayName(claims, email)}, nil
}

// displayName prefers name, then Apple's {firstName, lastName}, then
// given_name and family_name, then the email.
func displayName(claims map[string]interface{}, email string) string {
	switch name := claims["name"].(type) {
	case string:
		if strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	case map[string]interface{}:
		full := strings.TrimSpace(stringClaim(name, "firstName") + " " + stringClaim(name, "lastName"))
		if full != "" {
			return full
		}
	}
	full := strings.TrimSpace(stringClaim(claims, "given_name") + " " + stringClaim(claims, "family_name"))
	if full != "" {
		return full
	}
	return email
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
