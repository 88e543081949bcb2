package externalprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultUserInfoTimeout = 10 * time.Second
	DefaultRetryDelay      = 2 * time.Second
	maxUserInfoBody        = 1 << 20
)

// ProviderUserInfoClient fetches the user-info document for a bearer token.
type ProviderUserInfoClient interface {
	FetchUserInfo(ctx context.Context, endpoint, bearerToken string) (map[string]interface{}, error)
}

// HTTPUserInfoClient calls user-info endpoints with one retry after a fixed
// delay on transport errors and 5xx responses.
type HTTPUserInfoClient struct {
	client *retryablehttp.Client
}

type ClientOption func(*retryablehttp.Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *retryablehttp.Client) {
		if timeout > 0 {
			c.HTTPClient.Timeout = timeout
		}
	}
}

func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = delay
		c.RetryWaitMax = delay
	}
}

func NewHTTPUserInfoClient(opts ...ClientOption) *HTTPUserInfoClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 1
	c.RetryWaitMin = DefaultRetryDelay
	c.RetryWaitMax = DefaultRetryDelay
	c.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return min
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.HTTPClient.Timeout = DefaultUserInfoTimeout
	c.Logger = slog.Default()
	for _, opt := range opts {
		opt(c)
	}
	return &HTTPUserInfoClient{client: c}
}

func (c *HTTPUserInfoClient) FetchUserInfo(ctx context.Context, endpoint, bearerToken string) (map[string]interface{}, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch user info: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var info map[string]interface{}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w", err)
	}
	return info, nil
}
