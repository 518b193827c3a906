// ABOUTME: Tests for Gateway.Call against an httptest upstream
// ABOUTME: Covers 401 re-login, retry limits, profile and base URL resolution, body decoding

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/idgov-mcp/internal/auth"
	"github.com/2389/idgov-mcp/internal/profile"
)

// upstream is a fake vendor API. Logins hand out numbered tokens; api calls go
// to the api handler with the bearer they presented.
type upstream struct {
	logins   atomic.Int32
	apiCalls atomic.Int32

	mu      sync.Mutex
	lastURL *url.URL
	lastReq map[string]any

	api func(w http.ResponseWriter, r *http.Request, bearer string)
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/login") {
		n := u.logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": fmt.Sprintf("tok-%d", n), "expires_in": 3600})
		return
	}

	u.apiCalls.Add(1)
	var body map[string]any
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	u.mu.Lock()
	u.lastURL = r.URL
	u.lastReq = body
	u.mu.Unlock()

	u.api(w, r, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

type fixture struct {
	gw    *Gateway
	store *profile.Store
	up    *upstream
	srv   *httptest.Server
}

func newFixture(t *testing.T, env bool, api func(http.ResponseWriter, *http.Request, string)) *fixture {
	t.Helper()

	up := &upstream{api: api}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	var defaults profile.EnvDefaults
	if env {
		defaults = profile.EnvDefaults{Username: "svc", Secret: "s3cret", BaseURL: srv.URL}
	}
	store := profile.NewStore(defaults)

	a, err := auth.New(auth.Config{Store: store, HTTPClient: srv.Client(), APIPath: "ECM/api/v5"})
	require.NoError(t, err)

	defaultBase := ""
	if env {
		defaultBase = srv.URL
	}
	gw, err := New(Config{Store: store, Authenticator: a, HTTPClient: srv.Client(), DefaultBaseURL: defaultBase})
	require.NoError(t, err)

	return &fixture{gw: gw, store: store, up: up, srv: srv}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCall_UnauthorizedOnceThenOK(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	f := newFixture(t, true, func(w http.ResponseWriter, _ *http.Request, bearer string) {
		if first.Swap(false) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bearer": bearer})
	})

	resp, err := f.gw.Call(context.Background(), Request{Endpoint: "/ECM/api/v5/users"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Retried)
	assert.Equal(t, map[string]any{"bearer": "tok-2"}, resp.Body)
	assert.Equal(t, int32(2), f.up.logins.Load(), "initial login plus exactly one re-login")
	assert.Equal(t, int32(2), f.up.apiCalls.Load())
}

func TestCall_AlwaysUnauthorized(t *testing.T) {
	f := newFixture(t, true, func(w http.ResponseWriter, _ *http.Request, _ string) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "nope"})
	})

	_, err := f.gw.Call(context.Background(), Request{Endpoint: "/ECM/api/v5/users"})
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusUnauthorized, upErr.Status)
	assert.Equal(t, "Unauthorized", upErr.Reason)
	assert.Contains(t, upErr.Body, "nope")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(2), f.up.apiCalls.Load(), "two total attempts")
	assert.Equal(t, int32(2), f.up.logins.Load())
}

func TestCall_NoRetry(t *testing.T) {
	f := newFixture(t, true, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := f.gw.Call(context.Background(), Request{Endpoint: "/x", NoRetry: true})
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(1), f.up.apiCalls.Load())
	assert.Equal(t, int32(1), f.up.logins.Load())
}

func TestCall_SkipAuth(t *testing.T) {
	f := newFixture(t, false, func(w http.ResponseWriter, _ *http.Request, bearer string) {
		if bearer != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	// No profile at all, so the base URL must be explicit.
	_, err := f.gw.Call(context.Background(), Request{Endpoint: "/ping", BaseURL: f.srv.URL, SkipAuth: true})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusUnauthorized, upErr.Status, "401 is not retried without auth")
	assert.Equal(t, int32(0), f.up.logins.Load())
	assert.Equal(t, int32(1), f.up.apiCalls.Load())
}

func TestCall_UpstreamErrorBodyExcerpt(t *testing.T) {
	long := strings.Repeat("é", 2500)
	f := newFixture(t, true, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, long)
	})

	_, err := f.gw.Call(context.Background(), Request{Endpoint: "/boom"})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.Status)
	assert.Equal(t, 2000, len([]rune(upErr.Body)))
}

func TestCall_QueryAndBody(t *testing.T) {
	f := newFixture(t, true, func(w http.ResponseWriter, _ *http.Request, _ string) {
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
	})

	resp, err := f.gw.Call(context.Background(), Request{
		Endpoint: "ECM/api/v5/users",
		Method:   "post",
		Query: map[string]any{
			"status": []any{"active", "locked"},
			"limit":  float64(50),
			"skip":   nil,
			"ids":    []string{"a", "b"},
		},
		Body: map[string]any{"name": "ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	f.up.mu.Lock()
	defer f.up.mu.Unlock()
	q := f.up.lastURL.Query()
	assert.Equal(t, "/ECM/api/v5/users", f.up.lastURL.Path)
	assert.Equal(t, []string{"active", "locked"}, q["status"])
	assert.Equal(t, []string{"a", "b"}, q["ids"])
	assert.Equal(t, "50", q.Get("limit"))
	_, hasSkip := q["skip"]
	assert.False(t, hasSkip)
	assert.Equal(t, map[string]any{"name": "ada"}, f.up.lastReq)
}

func TestCall_MissingConfiguration(t *testing.T) {
	f := newFixture(t, false, nil)
	_, err := f.store.Upsert("nobase", "u", "p", "", true)
	require.NoError(t, err)

	_, err = f.gw.Call(context.Background(), Request{Endpoint: "/users"})
	require.ErrorIs(t, err, ErrMissingConfig)

	var mc *MissingConfigError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, "IDGOV_BASE_URL", mc.EnvVar)
}

func TestCall_LoginRequired(t *testing.T) {
	f := newFixture(t, false, nil)
	_, err := f.gw.Call(context.Background(), Request{Endpoint: "/users"})
	assert.ErrorIs(t, err, profile.ErrLoginRequired)
}

func TestCall_ProfileFromContext(t *testing.T) {
	f := newFixture(t, true, func(w http.ResponseWriter, _ *http.Request, _ string) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	_, err := f.store.Upsert("tenant-b", "bob", "pw", f.srv.URL, false)
	require.NoError(t, err)

	ctx := auth.WithProfile(context.Background(), "tenant-b")
	resp, err := f.gw.Call(ctx, Request{Endpoint: "/users"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", resp.ProfileID)

	// An explicit profile beats the context.
	resp, err = f.gw.Call(ctx, Request{Endpoint: "/users", Profile: profile.EnvDefaultID})
	require.NoError(t, err)
	assert.Equal(t, profile.EnvDefaultID, resp.ProfileID)

	_, err = f.gw.Call(ctx, Request{Endpoint: "/users", Profile: "ghost"})
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)
}

func TestCall_TextAndEmptyBodies(t *testing.T) {
	f := newFixture(t, true, func(w http.ResponseWriter, r *http.Request, _ string) {
		switch r.URL.Path {
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "hello")
		case "/sniffed":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, ` [1, 2] `)
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	resp, err := f.gw.Call(ctx, Request{Endpoint: "/text"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Body)

	resp, err = f.gw.Call(ctx, Request{Endpoint: "/sniffed"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, resp.Body)

	resp, err = f.gw.Call(ctx, Request{Endpoint: "/empty"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, resp.Body)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false, nil)

	p, tok, err := f.gw.Login(context.Background(), "acme", "ada", "pw", f.srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL, p.BaseURL)
	assert.Equal(t, "tok-1", tok.AccessToken)
	assert.Equal(t, "acme", f.store.ActiveID())

	_, _, err = f.gw.Login(context.Background(), "acme", "ada", "pw", "")
	assert.ErrorIs(t, err, ErrMissingConfig)
}
