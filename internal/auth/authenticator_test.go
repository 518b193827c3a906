// ABOUTME: Tests for the Authenticator against an httptest vendor mock
// ABOUTME: Covers the fallback chain order, caching, expiry margin and failure reporting

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/idgov-mcp/internal/profile"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// vendorMock records login attempts and answers with handler.
type vendorMock struct {
	mu       sync.Mutex
	attempts []string
	handler  func(path string, body map[string]string) (int, any)
}

func (v *vendorMock) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	key := r.URL.Path
	if body["grant_type"] != "" {
		key += "+grant"
	}
	v.mu.Lock()
	v.attempts = append(v.attempts, key)
	v.mu.Unlock()

	status, resp := v.handler(r.URL.Path, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if resp != nil {
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (v *vendorMock) Attempts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.attempts...)
}

func newTestAuthenticator(t *testing.T, handler func(string, map[string]string) (int, any)) (*Authenticator, *profile.Store, *vendorMock, *httptest.Server, *testClock) {
	t.Helper()

	mock := &vendorMock{handler: handler}
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := profile.NewStore(profile.EnvDefaults{}, profile.WithClock(clock.Now))

	a, err := New(Config{Store: store, HTTPClient: srv.Client(), APIPath: "ECM/api/v5"})
	require.NoError(t, err)
	return a, store, mock, srv, clock
}

func TestToken_FirstCandidateSucceeds(t *testing.T) {
	a, store, mock, srv, clock := newTestAuthenticator(t, func(string, map[string]string) (int, any) {
		return http.StatusOK, map[string]any{"access_token": "tok-1", "expires_in": 1000}
	})

	p, err := store.Upsert("acme", "svc", "s3cret", srv.URL, false)
	require.NoError(t, err)

	tok, err := a.Token(context.Background(), p, srv.URL, false)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", tok.AccessToken)
	assert.Equal(t, clock.Now().Add(920*time.Second), tok.Expiry)
	assert.Equal(t, []string{"/ECM/api/login"}, mock.Attempts())
	assert.Equal(t, "acme", store.ActiveID(), "successful login activates the profile")
}

func TestToken_FallbackChainOrder(t *testing.T) {
	a, store, mock, srv, _ := newTestAuthenticator(t, func(path string, body map[string]string) (int, any) {
		switch {
		case path == "/ECM/api/login":
			return http.StatusNotFound, nil
		case path == "/api/login" && body["grant_type"] == "":
			return http.StatusOK, map[string]any{"message": "grant_type required"}
		case path == "/api/login":
			return http.StatusOK, map[string]any{"data": map[string]any{"accessToken": "nested", "expiresIn": "600"}}
		}
		return http.StatusTeapot, nil
	})

	p, err := store.Upsert("acme", "svc", "s3cret", srv.URL, false)
	require.NoError(t, err)

	tok, err := a.Token(context.Background(), p, srv.URL, false)
	require.NoError(t, err)
	assert.Equal(t, "nested", tok.AccessToken)
	assert.Equal(t, []string{
		"/ECM/api/login",
		"/ECM/api/login+grant",
		"/api/login",
		"/api/login+grant",
	}, mock.Attempts())
}

func TestToken_AllCandidatesFail(t *testing.T) {
	a, store, mock, srv, _ := newTestAuthenticator(t, func(string, map[string]string) (int, any) {
		return http.StatusUnauthorized, map[string]any{"error": "bad credentials"}
	})

	p, err := store.Upsert("acme", "svc", "wrong", srv.URL, false)
	require.NoError(t, err)

	_, err = a.Token(context.Background(), p, srv.URL, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	var authErr *AuthenticationFailedError
	require.ErrorAs(t, err, &authErr)
	require.Len(t, authErr.Attempts, 6)
	assert.Equal(t, "/ECM/api/v5/login", authErr.Attempts[5].Path)
	for _, at := range authErr.Attempts {
		assert.Equal(t, http.StatusUnauthorized, at.Status)
	}
	assert.Len(t, mock.Attempts(), 6)
	assert.NotContains(t, err.Error(), "wrong", "secret must not leak into errors")
	assert.Equal(t, "", store.ActiveID())
}

func TestToken_CachesUntilExpiry(t *testing.T) {
	a, store, mock, srv, clock := newTestAuthenticator(t, func(string, map[string]string) (int, any) {
		return http.StatusOK, map[string]any{"token": "t", "expires_in": 10}
	})
	ctx := context.Background()

	p, err := store.Upsert("acme", "svc", "s3cret", srv.URL, false)
	require.NoError(t, err)

	_, err = a.Token(ctx, p, srv.URL, false)
	require.NoError(t, err)
	require.Len(t, mock.Attempts(), 1)

	// 10s lifetime is clamped up to the 30s floor.
	clock.Advance(29 * time.Second)
	_, err = a.Token(ctx, p, srv.URL, false)
	require.NoError(t, err)
	assert.Len(t, mock.Attempts(), 1, "token still cached just before expiry")

	clock.Advance(time.Second)
	_, err = a.Token(ctx, p, srv.URL, false)
	require.NoError(t, err)
	assert.Len(t, mock.Attempts(), 2, "token at its expiry instant triggers a login")
}

func TestToken_ForceRefresh(t *testing.T) {
	n := 0
	a, store, _, srv, _ := newTestAuthenticator(t, func(string, map[string]string) (int, any) {
		n++
		return http.StatusOK, map[string]any{"jwt": "t" + string(rune('0'+n))}
	})
	ctx := context.Background()

	p, err := store.Upsert("acme", "svc", "s3cret", srv.URL, false)
	require.NoError(t, err)

	first, err := a.Token(ctx, p, srv.URL, false)
	require.NoError(t, err)
	second, err := a.Token(ctx, p, srv.URL, true)
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	cached, ok := store.Token("acme", srv.URL)
	require.True(t, ok)
	assert.Equal(t, second.AccessToken, cached.AccessToken)
}

func TestToken_SecretChangeForcesLogin(t *testing.T) {
	a, store, mock, srv, _ := newTestAuthenticator(t, func(string, map[string]string) (int, any) {
		return http.StatusOK, map[string]any{"access_token": "t"}
	})
	ctx := context.Background()

	p, err := store.Upsert("acme", "svc", "old", srv.URL, false)
	require.NoError(t, err)
	_, err = a.Token(ctx, p, srv.URL, false)
	require.NoError(t, err)

	p, err = store.Upsert("acme", "svc", "new", srv.URL, false)
	require.NoError(t, err)
	_, err = a.Token(ctx, p, srv.URL, false)
	require.NoError(t, err)

	assert.Len(t, mock.Attempts(), 2)
}

func TestToken_NoBaseURL(t *testing.T) {
	a, store, mock, _, _ := newTestAuthenticator(t, nil)
	p, err := store.Upsert("acme", "svc", "s3cret", "", false)
	require.NoError(t, err)

	_, err = a.Token(context.Background(), p, "", false)
	assert.ErrorIs(t, err, ErrNoBaseURL)
	assert.Empty(t, mock.Attempts())
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestLoginCandidates(t *testing.T) {
	tests := []struct {
		apiPath string
		want    []string
	}{
		{"ECM/api/v5", []string{"/ECM/api/login", "/api/login", "/ECM/api/v5/login"}},
		{"/api/", []string{"/ECM/api/login", "/api/login"}},
		{"", []string{"/ECM/api/login", "/api/login"}},
	}
	for _, tt := range tests {
		t.Run(tt.apiPath, func(t *testing.T) {
			cands := loginCandidates(tt.apiPath)
			require.Len(t, cands, len(tt.want)*2)
			for i, path := range tt.want {
				assert.Equal(t, path, cands[2*i].path)
				assert.Equal(t, "password", cands[2*i].payload.name)
				assert.Equal(t, path, cands[2*i+1].path)
				assert.Equal(t, "password_grant", cands[2*i+1].payload.name)
			}
		})
	}
}

func TestExtractLifetime(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want time.Duration
	}{
		{"missing", map[string]any{}, DefaultTokenLifetime},
		{"number", map[string]any{"expires_in": float64(120)}, 120 * time.Second},
		{"numeric string", map[string]any{"expiry": "90"}, 90 * time.Second},
		{"garbage string", map[string]any{"expires": "soon"}, DefaultTokenLifetime},
		{"zero", map[string]any{"expires_in": float64(0)}, DefaultTokenLifetime},
		{"nested", map[string]any{"data": map[string]any{"token_expires_in": float64(60)}}, 60 * time.Second},
		{"top level wins", map[string]any{"expiresIn": float64(5), "data": map[string]any{"expiresIn": float64(7)}}, 5 * time.Second},
		{"multi year", map[string]any{"expires_in": float64(1.2e8)}, 120_000_000 * time.Second},
		{"epoch seconds", map[string]any{"expires": float64(1.76e9)}, 1_760_000_000 * time.Second},
		{"epoch string", map[string]any{"expiry": "1760000000"}, 1_760_000_000 * time.Second},
		{"beyond duration range", map[string]any{"expires_in": float64(1e12)}, time.Duration(maxLifetimeSeconds) * time.Second},
		{"not a number", map[string]any{"expires_in": "NaN"}, DefaultTokenLifetime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractLifetime(tt.body))
		})
	}
}

func TestCacheLifetime(t *testing.T) {
	assert.Equal(t, 30*time.Second, cacheLifetime(10*time.Second))
	assert.Equal(t, 3312*time.Second, cacheLifetime(DefaultTokenLifetime))
	assert.Equal(t, 110_400_000*time.Second, cacheLifetime(120_000_000*time.Second))
	assert.Equal(t, 1_619_200_000*time.Second, cacheLifetime(extractLifetime(map[string]any{"expires": "1760000000"})))

	longest := cacheLifetime(time.Duration(maxLifetimeSeconds) * time.Second)
	assert.Greater(t, longest, 200*365*24*time.Hour, "renewal margin on the clamped lifetime must not wrap")
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "a", extractToken(map[string]any{"access_token": "a", "token": "b"}))
	assert.Equal(t, "b", extractToken(map[string]any{"access_token": "", "token": "b"}))
	assert.Equal(t, "c", extractToken(map[string]any{"data": map[string]any{"id_token": "c"}}))
	assert.Equal(t, "", extractToken(map[string]any{"token": 42}))
	assert.Equal(t, "", extractToken(map[string]any{"data": "not an object"}))
}
