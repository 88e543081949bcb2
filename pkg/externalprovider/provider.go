package externalprovider

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"

	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Provider describes where opaque tokens for a provider are resolved.
// Providers without a UserInfoURL accept identity tokens only.
type Provider struct {
	ID          string
	UserInfoURL string
}

// DefaultProviders returns google and apple.
func DefaultProviders() []Provider {
	return []Provider{
		{ID: ProviderGoogle, UserInfoURL: GoogleUserInfoURL},
		{ID: ProviderApple},
	}
}

func (p Provider) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("provider ID is required")
	}
	if p.UserInfoURL == "" {
		return nil
	}
	u, err := url.Parse(p.UserInfoURL)
	if err != nil {
		return fmt.Errorf("invalid user info URL: %w", err)
	}
	if u.Scheme != "https" && !strings.HasPrefix(u.Host, "127.0.0.1") && !strings.HasPrefix(u.Host, "localhost") {
		return fmt.Errorf("user info URL must use https")
	}
	return nil
}
