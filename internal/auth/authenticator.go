// ABOUTME: Exchanges profile credentials for upstream bearer tokens and caches them
// ABOUTME: Walks the login fallback chain and records every attempt on failure

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/2389/idgov-mcp/internal/metrics"
	"github.com/2389/idgov-mcp/internal/profile"
)

// maxLoginBody caps how much of a login response is read.
const maxLoginBody = 1 << 20

// Config holds Authenticator dependencies.
type Config struct {
	Store      *profile.Store
	HTTPClient *http.Client
	APIPath    string // e.g. "ECM/api/v5"; contributes the last login path candidate
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Authenticator obtains bearer tokens for profiles.
type Authenticator struct {
	store      *profile.Store
	client     *http.Client
	candidates []loginCandidate
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an Authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Store == nil {
		return nil, errors.New("profile store is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		store:      cfg.Store,
		client:     client,
		candidates: loginCandidates(cfg.APIPath),
		metrics:    cfg.Metrics,
		logger:     logger.With("component", "auth"),
	}, nil
}

// Token returns a usable bearer token for p at baseURL. A cached token is reused
// unless forceRefresh is set. On a fresh login the token is cached and p becomes
// the active profile.
func (a *Authenticator) Token(ctx context.Context, p profile.Profile, baseURL string, forceRefresh bool) (*oauth2.Token, error) {
	baseURL = profile.NormalizeBaseURL(baseURL)
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	if !forceRefresh {
		if tok, ok := a.store.Token(p.ID, baseURL); ok {
			return tok, nil
		}
	}

	tok, err := a.login(ctx, p, baseURL)
	if err != nil {
		a.metrics.Login("failed")
		return nil, err
	}
	a.metrics.Login("ok")

	a.store.StoreToken(p.ID, baseURL, tok)
	if err := a.store.SetActive(p.ID); err != nil {
		// The profile was deleted while we were logging in.
		a.logger.Debug("could not activate profile after login", "profile", p.ID, "error", err)
	}
	return tok, nil
}

func (a *Authenticator) login(ctx context.Context, p profile.Profile, baseURL string) (*oauth2.Token, error) {
	attempts := make([]Attempt, 0, len(a.candidates))
	for _, c := range a.candidates {
		tok, attempt := a.try(ctx, p, baseURL, c)
		attempts = append(attempts, attempt)
		if tok != nil {
			a.logger.Info("logged in",
				"profile", p.ID,
				"base_url", baseURL,
				"path", c.path,
				"payload", c.payload.name,
				"expires", tok.Expiry,
			)
			return tok, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	a.logger.Warn("login failed", "profile", p.ID, "base_url", baseURL, "attempts", len(attempts))
	return nil, &AuthenticationFailedError{ProfileID: p.ID, BaseURL: baseURL, Attempts: attempts}
}

// try runs one candidate. It returns a token only on 2xx with a token field.
func (a *Authenticator) try(ctx context.Context, p profile.Profile, baseURL string, c loginCandidate) (*oauth2.Token, Attempt) {
	attempt := Attempt{Path: c.path, Payload: c.payload.name}

	payload, err := json.Marshal(c.payload.build(p.Username, p.Secret))
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+c.path, bytes.NewReader(payload))
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt
	}
	defer resp.Body.Close()

	attempt.Status = resp.StatusCode
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
	if err != nil {
		attempt.Error = fmt.Sprintf("reading response: %v", err)
		return nil, attempt
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attempt.Error = http.StatusText(resp.StatusCode)
		a.logger.Debug("login attempt rejected", "path", c.path, "payload", c.payload.name, "status", resp.StatusCode)
		return nil, attempt
	}

	var body map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &body); err != nil {
		attempt.Error = "response is not a JSON object"
		return nil, attempt
	}

	access := extractToken(body)
	if access == "" {
		attempt.Error = "no token field in response"
		return nil, attempt
	}

	expiry := a.store.Now().Add(cacheLifetime(extractLifetime(body)))
	tokenType := "Bearer"
	if tt, ok := body["token_type"].(string); ok && strings.EqualFold(tt, "bearer") {
		tokenType = tt
	}
	return &oauth2.Token{AccessToken: access, TokenType: tokenType, Expiry: expiry}, attempt
}
