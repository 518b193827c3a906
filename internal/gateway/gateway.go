// ABOUTME: Gateway performs authenticated upstream calls with a single 401 re-login retry
// ABOUTME: Resolves profile and base URL from the request, the context and the store

package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/2389/idgov-mcp/internal/auth"
	"github.com/2389/idgov-mcp/internal/metrics"
	"github.com/2389/idgov-mcp/internal/profile"
)

// maxResponseBody caps how much of an upstream response is read.
const maxResponseBody = 32 << 20

// Config holds Gateway dependencies.
type Config struct {
	Store          *profile.Store
	Authenticator  *auth.Authenticator
	HTTPClient     *http.Client
	DefaultBaseURL string
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Gateway issues calls against the upstream API.
type Gateway struct {
	store          *profile.Store
	auth           *auth.Authenticator
	client         *http.Client
	defaultBaseURL string
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Request describes one upstream call. The zero value of SkipAuth and NoRetry
// means the call is authenticated and retried once on 401.
type Request struct {
	Endpoint string         // path relative to the base URL, or an absolute URL
	Method   string         // defaults to GET
	Query    map[string]any // slice values repeat the key; nil values are omitted
	Body     any            // JSON-encoded unless string or []byte
	BaseURL  string         // overrides the profile and default base URL
	Profile  string         // overrides the context and active profile
	SkipAuth bool
	NoRetry  bool
}

// Response is a decoded upstream response.
type Response struct {
	Status    int
	Header    http.Header
	Body      any
	ProfileID string
	BaseURL   string
	Retried   bool
}

// New creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, errors.New("profile store is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:          cfg.Store,
		auth:           cfg.Authenticator,
		client:         client,
		defaultBaseURL: profile.NormalizeBaseURL(cfg.DefaultBaseURL),
		metrics:        cfg.Metrics,
		logger:         logger.With("component", "gateway"),
	}, nil
}

// DefaultBaseURL returns the configured process default base URL.
func (g *Gateway) DefaultBaseURL() string {
	return g.defaultBaseURL
}

// ResolveProfile returns the profile a call would use: explicit, then the
// context profile, then the active or environment-default profile.
func (g *Gateway) ResolveProfile(ctx context.Context, explicit string) (profile.Profile, error) {
	id := strings.TrimSpace(explicit)
	if id == "" {
		id = auth.ProfileFromContext(ctx)
	}
	return g.store.Resolve(id)
}

// BaseURLFor picks override, then the profile's base URL, then the default.
func (g *Gateway) BaseURLFor(p profile.Profile, override string) (string, error) {
	for _, candidate := range []string{override, p.BaseURL, g.defaultBaseURL} {
		if base := profile.NormalizeBaseURL(candidate); base != "" {
			return base, nil
		}
	}
	return "", missingBaseURL()
}

// Login stores the given credentials under id and forces a fresh token. On
// success the profile becomes active.
func (g *Gateway) Login(ctx context.Context, id, username, secret, baseURL string) (profile.Profile, *oauth2.Token, error) {
	base := profile.NormalizeBaseURL(baseURL)
	if base == "" {
		base = g.defaultBaseURL
	}
	if base == "" {
		return profile.Profile{}, nil, missingBaseURL()
	}

	p, err := g.store.Upsert(id, username, secret, base, false)
	if err != nil {
		return profile.Profile{}, nil, err
	}
	tok, err := g.auth.Token(ctx, p, base, true)
	if err != nil {
		return p, nil, err
	}
	return p, tok, nil
}

// Call performs req and decodes the response.
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	p, err := g.ResolveProfile(ctx, req.Profile)
	if err != nil {
		// Unauthenticated calls may proceed without any profile.
		if !req.SkipAuth || !errors.Is(err, profile.ErrLoginRequired) {
			return nil, err
		}
		p = profile.Profile{}
	}

	baseURL, err := g.BaseURLFor(p, req.BaseURL)
	if err != nil && !(req.SkipAuth && isAbsolute(req.Endpoint)) {
		return nil, err
	}

	target, err := buildURL(baseURL, req.Endpoint, req.Query)
	if err != nil {
		return nil, err
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	var tok *oauth2.Token
	if !req.SkipAuth {
		tok, err = g.auth.Token(ctx, p, baseURL, false)
		if err != nil {
			return nil, err
		}
	}

	resp, raw, err := g.exchange(ctx, method, target, body, tok)
	if err != nil {
		return nil, err
	}

	retried := false
	if resp.StatusCode == http.StatusUnauthorized && !req.SkipAuth && !req.NoRetry {
		g.logger.Info("upstream rejected token, logging in again", "profile", p.ID, "base_url", baseURL)
		g.metrics.UnauthorizedRetry()
		g.store.InvalidateToken(p.ID, baseURL)

		tok, err = g.auth.Token(ctx, p, baseURL, true)
		if err != nil {
			return nil, err
		}
		resp, raw, err = g.exchange(ctx, method, target, body, tok)
		if err != nil {
			return nil, err
		}
		retried = true
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Method: method,
			URL:    target,
			Status: resp.StatusCode,
			Reason: reason(resp),
			Body:   excerpt(string(raw), maxErrorBody),
		}
	}

	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      decodeBody(resp.Header.Get("Content-Type"), raw),
		ProfileID: p.ID,
		BaseURL:   baseURL,
		Retried:   retried,
	}, nil
}

// exchange sends one request and reads the full body. The returned response body is closed.
func (g *Gateway) exchange(ctx context.Context, method, target string, body []byte, tok *oauth2.Token) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if tok != nil {
		tok.SetAuthHeader(httpReq)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.metrics.Upstream(method, 0)
		return nil, nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	g.metrics.Upstream(method, resp.StatusCode)
	g.logger.Debug("upstream call",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s %s response: %w", method, target, err)
	}
	return resp, raw, nil
}

// reason returns the reason phrase of resp.Status, or the standard text.
func reason(resp *http.Response) string {
	if _, phrase, ok := strings.Cut(resp.Status, " "); ok && phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}
