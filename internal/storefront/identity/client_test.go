package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medimart/storefront/internal/storefront/kvstore"
	"github.com/medimart/storefront/internal/storefront/transport"
	"github.com/stretchr/testify/require"
)


func tokenResponse(token string, expires time.Time) *http.Response {
	body := []byte(`{"data":{"idToken":"` + token + `","refreshToken":"refresh-1","expiresAt":"` + expires.UTC().Format(time.RFC3339) + `","principal":{"id":"5b1f8a52-0000-4000-8000-000000000001","email":"ada@example.com","displayName":"Ada"}}}`)
	return transport.JSONResponse(http.StatusOK, string(body))
}

func newTestClient(t *testing.T, store kvstore.Store, now time.Time, rt transport.RoundTripFunc) *Client {
	t.Helper()
	c, err := New("http://id.test/identity/v1", store, nil,
		WithHTTPClient(&http.Client{Transport: rt}),
		WithRefreshSkew(time.Minute),
		withClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	return c
}

func TestSignInPersistsAndPublishes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kvstore.NewMemory()
	client := newTestClient(t, store, now, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "http://id.test/identity/v1/login", req.URL.String())
		raw, _ := io.ReadAll(req.Body)
		var body map[string]string
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, "ada@example.com", body["email"])
		return tokenResponse("tok-1", now.Add(time.Hour)), nil
	})

	require.NoError(t, client.Init(context.Background()))
	ch, cancel := client.Subscribe()
	defer cancel()
	require.Nil(t, <-ch)

	p, err := client.SignInWithPassword(context.Background(), " ada@example.com ", "secret1")
	require.NoError(t, err)
	require.Equal(t, "Ada", p.DisplayName)

	published := <-ch
	require.NotNil(t, published)
	require.Equal(t, p.ID, published.ID)

	_, ok, err := store.Get(context.Background(), kvstore.KeyCredentials)
	require.NoError(t, err)
	require.True(t, ok)

	tok, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok.Value)
}

func TestInitRestoresPersistedCredentials(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kvstore.NewMemory()
	raw, _ := json.Marshal(credentials{
		IDToken: "stored", RefreshToken: "r", ExpiresAt: now.Add(time.Hour),
		Principal: Principal{ID: "id-1", Email: "ada@example.com"},
	})
	require.NoError(t, store.Set(context.Background(), kvstore.KeyCredentials, raw))

	client := newTestClient(t, store, now, func(*http.Request) (*http.Response, error) {
		t.Fatal("no network expected")
		return nil, nil
	})
	require.NoError(t, client.Init(context.Background()))
	require.Equal(t, "id-1", client.Current().ID)

	ch, cancel := client.Subscribe()
	defer cancel()
	require.Equal(t, "id-1", (<-ch).ID)
}

func TestTokenRefreshesNearExpiryOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kvstore.NewMemory()
	raw, _ := json.Marshal(credentials{
		IDToken: "old", RefreshToken: "r", ExpiresAt: now.Add(30 * time.Second),
		Principal: Principal{ID: "id-1"},
	})
	require.NoError(t, store.Set(context.Background(), kvstore.KeyCredentials, raw))

	var calls int32
	client := newTestClient(t, store, now, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "/identity/v1/refresh", req.URL.Path)
		require.Equal(t, "Bearer old", req.Header.Get("Authorization"))
		return tokenResponse("new", now.Add(time.Hour)), nil
	})
	require.NoError(t, client.Init(context.Background()))

	tok, err := client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "new", tok.Value)

	tok, err = client.Token(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "new", tok.Value)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRefreshRejectedSignsOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kvstore.NewMemory()
	raw, _ := json.Marshal(credentials{IDToken: "old", RefreshToken: "r", ExpiresAt: now, Principal: Principal{ID: "id-1"}})
	require.NoError(t, store.Set(context.Background(), kvstore.KeyCredentials, raw))

	client := newTestClient(t, store, now, func(*http.Request) (*http.Response, error) {
		return transport.JSONResponse(http.StatusUnauthorized, `{"error":{"code":"UNAUTHORIZED","message":"refresh token revoked"}}`), nil
	})
	require.NoError(t, client.Init(context.Background()))

	_, err := client.Token(context.Background(), false)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Nil(t, client.Current())

	_, err = client.Token(context.Background(), false)
	require.ErrorIs(t, err, ErrNoPrincipal)
}

func TestSignOutClearsEvenWhenRemoteFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kvstore.NewMemory()
	client := newTestClient(t, store, now, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/identity/v1/logout" {
			return transport.JSONResponse(http.StatusServiceUnavailable, `{"error":{"code":"DEPENDENCY_ERROR","message":"redis down"}}`), nil
		}
		return tokenResponse("tok", now.Add(time.Hour)), nil
	})
	require.NoError(t, client.Init(context.Background()))
	_, err := client.SignUp(context.Background(), SignUpInput{Email: "ada@example.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	err = client.SignOut(context.Background())
	require.Error(t, err)
	require.Nil(t, client.Current())
	_, ok, _ := store.Get(context.Background(), kvstore.KeyCredentials)
	require.False(t, ok)
}

func TestSignInWithProviderUnsupported(t *testing.T) {
	client := newTestClient(t, kvstore.NewMemory(), time.Now(), nil)
	_, err := client.SignInWithProvider(context.Background(), "google")
	require.ErrorIs(t, err, ErrProviderUnsupported)
}
