package externalprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/errors"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("provider-key"))
	require.NoError(t, err)
	return token
}

type stubClient struct {
	info  map[string]interface{}
	err   error
	calls int
	token string
}

func (s *stubClient) FetchUserInfo(ctx context.Context, endpoint, bearerToken string) (map[string]interface{}, error) {
	s.calls++
	s.token = bearerToken
	return s.info, s.err
}

func TestResolve_JWT(t *testing.T) {
	client := &stubClient{}
	r := NewSocialIdentityResolver(WithUserInfoClient(client))
	ctx := context.Background()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"name claim", jwt.MapClaims{"email": "a@test.com", "name": "Ada Lovelace"}, "Ada Lovelace"},
		{"given and family", jwt.MapClaims{"email": "a@test.com", "given_name": "Ada", "family_name": "Lovelace"}, "Ada Lovelace"},
		{"apple name object", jwt.MapClaims{"email": "a@test.com", "name": map[string]interface{}{"firstName": "Ada", "lastName": "L"}}, "Ada L"},
		{"email fallback", jwt.MapClaims{"email": "a@test.com"}, "a@test.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(ctx, signedToken(t, tt.claims), "google")
			require.NoError(t, err)
			assert.Equal(t, "a@test.com", id.Email)
			assert.Equal(t, tt.want, id.Name)
			assert.Equal(t, "google", id.Provider)
		})
	}
	assert.Zero(t, client.calls)
}

func TestResolve_JWTWithWhitespace(t *testing.T) {
	r := NewSocialIdentityResolver(WithUserInfoClient(&stubClient{}))
	token := signedToken(t, jwt.MapClaims{"email": "a@test.com"})
	mangled := "  " + token[:10] + "\n " + token[10:] + "\t"

	id, err := r.Resolve(context.Background(), mangled, "apple")
	require.NoError(t, err)
	assert.Equal(t, "a@test.com", id.Email)
}

func TestResolve_JWTWithoutEmail(t *testing.T) {
	r := NewSocialIdentityResolver(WithUserInfoClient(&stubClient{}))
	_, err := r.Resolve(context.Background(), signedToken(t, jwt.MapClaims{"sub": "123"}), "google")
	assert.True(t, errors.IsCode(err, errors.ErrCodeProviderLookupFailed))
}

func TestResolve_Opaque(t *testing.T) {
	client := &stubClient{info: map[string]interface{}{"email": "b@test.com", "name": "Bob"}}
	r := NewSocialIdentityResolver(WithUserInfoClient(client))

	id, err := r.Resolve(context.Background(), "ya29.opaque-token", "google")
	require.NoError(t, err)
	assert.Equal(t, Identity{Email: "b@test.com", Name: "Bob", Provider: "google"}, id)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "ya29.opaque-token", client.token)
}

func TestResolve_DottedOpaqueToken(t *testing.T) {
	client := &stubClient{info: map[string]interface{}{"email": "c@test.com"}}
	r := NewSocialIdentityResolver(WithUserInfoClient(client))

	for _, token := range []string{"ya29.a0AfH6SMB.xyz", "a.!!!.c", "aaa.bm90LWpzb24.ccc"} {
		id, err := r.Resolve(context.Background(), token, "google")
		require.NoError(t, err, token)
		assert.Equal(t, "c@test.com", id.Email)
		assert.Equal(t, token, client.token)
	}
	assert.Equal(t, 3, client.calls)
}

func TestLooksLikeJWT(t *testing.T) {
	assert.True(t, looksLikeJWT(signedToken(t, jwt.MapClaims{"email": "a@test.com"})))
	assert.False(t, looksLikeJWT("ya29.a0AfH6SMB.xyz"))
	assert.False(t, looksLikeJWT("a..c"))
	assert.False(t, looksLikeJWT("opaque"))
}

func TestResolve_Failures(t *testing.T) {
	ctx := context.Background()

	r := NewSocialIdentityResolver(WithUserInfoClient(&stubClient{err: fmt.Errorf("failed to fetch user info: HTTP 401 - denied")}))
	_, err := r.Resolve(ctx, "opaque", "google")
	assert.True(t, errors.IsCode(err, errors.ErrCodeProviderLookupFailed))
	assert.Contains(t, err.Error(), "HTTP 401 - denied")

	_, err = r.Resolve(ctx, "   ", "google")
	assert.True(t, errors.IsCode(err, errors.ErrCodeProviderLookupFailed))

	_, err = r.Resolve(ctx, "opaque", "apple")
	assert.True(t, errors.IsCode(err, errors.ErrCodeProviderLookupFailed))

	_, err = r.Resolve(ctx, "opaque", "myspace")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, err = r.Resolve(ctx, "a.!!!.c", "google")
	assert.True(t, errors.IsCode(err, errors.ErrCodeProviderLookupFailed))
}

func TestHTTPUserInfoClient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "bad token")
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"email":"c@test.com","given_name":"Cy","family_name":"Young"}`)
	}))
	defer srv.Close()

	client := NewHTTPUserInfoClient(WithRetryDelay(10 * time.Millisecond))
	ctx := context.Background()

	info, err := client.FetchUserInfo(ctx, srv.URL, "good")
	require.NoError(t, err)
	assert.Equal(t, "c@test.com", info["email"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = client.FetchUserInfo(ctx, srv.URL, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401 - bad token")
}

func TestHTTPUserInfoClient_RetriesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	}))
	defer srv.Close()

	client := NewHTTPUserInfoClient(WithRetryDelay(10 * time.Millisecond))
	_, err := client.FetchUserInfo(context.Background(), srv.URL, "good")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestResolve_UserInfoEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"email":"d@test.com","name":"Dee"}`)
	}))
	defer srv.Close()

	r := NewSocialIdentityResolver(
		WithProvider(Provider{ID: "google", UserInfoURL: srv.URL}),
		WithUserInfoClient(NewHTTPUserInfoClient(WithRetryDelay(time.Millisecond))),
	)
	id, err := r.Resolve(context.Background(), "opaque", "Google")
	require.NoError(t, err)
	assert.Equal(t, "d@test.com", id.Email)
	assert.Equal(t, "Dee", id.Name)
}
