// ABOUTME: Thread-safe registry of credential profiles and the active-profile pointer
// ABOUTME: Lazily materializes the environment-default profile from configured credentials

package profile

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// EnvDefaultID is the reserved ID of the profile built from default credentials.
const EnvDefaultID = "env-default"

// Source records where a profile came from.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourceEnvironment Source = "environment"
)

// Profile is one credential and endpoint set.
type Profile struct {
	ID        string
	Username  string
	Secret    string
	BaseURL   string // normalized, may be empty to use the process default
	Source    Source
	UpdatedAt time.Time
}

// Summary is the listing view of a profile. It never carries the secret.
type Summary struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	BaseURL       string    `json:"baseUrl,omitempty"`
	Source        Source    `json:"source"`
	UpdatedAt     time.Time `json:"updatedAt"`
	HasValidToken bool      `json:"hasValidToken"`
	Active        bool      `json:"active"`
}

// EnvDefaults are the process-level credentials used to build EnvDefaultID.
type EnvDefaults struct {
	Username string
	Secret   string
	BaseURL  string
}

func (e EnvDefaults) present() bool {
	return e.Username != "" && e.Secret != ""
}

type tokenKey struct {
	profileID string
	baseURL   string
}

// Store owns all profiles, cached tokens and the active pointer.
type Store struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	tokens   map[tokenKey]*oauth2.Token
	active   string
	env      EnvDefaults
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store. env may be zero when no default credentials exist.
func NewStore(env EnvDefaults, opts ...Option) *Store {
	env.BaseURL = NormalizeBaseURL(env.BaseURL)
	s := &Store{
		profiles: make(map[string]*Profile),
		tokens:   make(map[tokenKey]*oauth2.Token),
		env:      env,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "profile")
	return s
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// HasEnvDefaults reports whether default credentials are configured.
func (s *Store) HasEnvDefaults() bool {
	return s.env.present()
}

// Upsert creates or replaces a profile. Cached tokens for the ID are dropped when
// the username, secret or base URL changed.
func (s *Store) Upsert(id, username, secret, baseURL string, makeActive bool) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("%w: profile id is required", ErrInvalidProfile)
	}
	if username == "" || secret == "" {
		return Profile{}, fmt.Errorf("%w: username and secret are required", ErrInvalidProfile)
	}
	baseURL = NormalizeBaseURL(baseURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[id]; ok {
		if existing.Username != username || existing.Secret != secret || existing.BaseURL != baseURL {
			dropped := s.invalidateTokensLocked(id)
			s.logger.Debug("profile credentials changed", "profile", id, "tokens_dropped", dropped)
		}
	}

	p := &Profile{
		ID:        id,
		Username:  username,
		Secret:    secret,
		BaseURL:   baseURL,
		Source:    SourceExplicit,
		UpdatedAt: s.now(),
	}
	s.profiles[id] = p
	if makeActive {
		s.active = id
	}

	s.logger.Info("profile stored", "profile", id, "base_url", baseURL, "active", s.active == id)
	return *p, nil
}

// Resolve returns the named profile, or the active/environment-default one when id is empty.
func (s *Store) Resolve(id string) (Profile, error) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if p, ok := s.profiles[id]; ok {
			return *p, nil
		}
		if id == EnvDefaultID {
			if p := s.materializeEnvLocked(false); p != nil {
				return *p, nil
			}
			return Profile{}, &LoginRequiredError{ProfileID: id, Reason: "no default credentials are configured"}
		}
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	if s.active != "" {
		if p, ok := s.profiles[s.active]; ok {
			return *p, nil
		}
		s.active = ""
	}

	if p := s.materializeEnvLocked(true); p != nil {
		return *p, nil
	}
	return Profile{}, &LoginRequiredError{Reason: "no active profile and no default credentials are configured"}
}

// SetActive points the active profile at id.
func (s *Store) SetActive(id string) error {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		if id != EnvDefaultID || s.materializeEnvLocked(false) == nil {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
	}
	s.active = id
	return nil
}

// ActiveID returns the active profile ID, or "" when unset.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Delete removes a profile and its tokens. Deleting the active profile clears the
// pointer; the environment-default profile is rebuilt if credentials exist, and
// becomes active on the next Resolve.
func (s *Store) Delete(id string) error {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	delete(s.profiles, id)
	dropped := s.invalidateTokensLocked(id)
	wasActive := s.active == id
	if wasActive {
		s.active = ""
		s.materializeEnvLocked(false)
	}

	s.logger.Info("profile deleted", "profile", id, "was_active", wasActive, "tokens_dropped", dropped)
	return nil
}

// List returns every profile ordered by ID.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	valid := make(map[string]bool)
	for key, tok := range s.tokens {
		if now.Before(tok.Expiry) {
			valid[key.profileID] = true
		}
	}

	out := make([]Summary, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, Summary{
			ID:            p.ID,
			Username:      p.Username,
			BaseURL:       p.BaseURL,
			Source:        p.Source,
			UpdatedAt:     p.UpdatedAt,
			HasValidToken: valid[p.ID],
			Active:        p.ID == s.active,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Token returns a cached token that is still usable at the current time.
func (s *Store) Token(profileID, baseURL string) (*oauth2.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[tokenKey{profileID: profileID, baseURL: NormalizeBaseURL(baseURL)}]
	if !ok || !s.now().Before(tok.Expiry) {
		return nil, false
	}
	return tok, true
}

// StoreToken caches tok for (profileID, baseURL), replacing any previous entry.
func (s *Store) StoreToken(profileID, baseURL string, tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey{profileID: profileID, baseURL: NormalizeBaseURL(baseURL)}] = tok
}

// InvalidateToken drops the cached token for one (profileID, baseURL) pair.
func (s *Store) InvalidateToken(profileID, baseURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey{profileID: profileID, baseURL: NormalizeBaseURL(baseURL)})
}

// InvalidateTokens drops every cached token for profileID and returns how many were removed.
func (s *Store) InvalidateTokens(profileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidateTokensLocked(profileID)
}

func (s *Store) invalidateTokensLocked(profileID string) int {
	n := 0
	for key := range s.tokens {
		if key.profileID == profileID {
			delete(s.tokens, key)
			n++
		}
	}
	return n
}

// materializeEnvLocked returns the environment-default profile, creating it if
// needed. Returns nil when no default credentials exist. Must be called with mu held.
func (s *Store) materializeEnvLocked(makeActive bool) *Profile {
	if !s.env.present() {
		return nil
	}
	p, ok := s.profiles[EnvDefaultID]
	if !ok {
		p = &Profile{
			ID:        EnvDefaultID,
			Username:  s.env.Username,
			Secret:    s.env.Secret,
			BaseURL:   s.env.BaseURL,
			Source:    SourceEnvironment,
			UpdatedAt: s.now(),
		}
		s.profiles[EnvDefaultID] = p
		s.logger.Info("materialized environment-default profile", "base_url", p.BaseURL)
	}
	if makeActive {
		s.active = EnvDefaultID
	}
	return p
}
