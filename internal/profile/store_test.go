// ABOUTME: Tests for the profile store and token cache
// ABOUTME: Covers upsert/resolve, invalidation, expiry boundaries and env-default materialization

package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(env EnvDefaults) (*Store, *fakeClock) {
	clk := newFakeClock()
	return NewStore(env, WithClock(clk.Now)), clk
}

func TestUpsertThenResolve(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{})

	cases := []struct {
		id, user, secret, base, wantBase string
	}{
		{"acme", "alice", "s3cret", "https://acme.example.com/", "https://acme.example.com"},
		{"globex", "bob", "hunter2", "https://globex.example.com///", "https://globex.example.com"},
		{"bare", "carol", "pw", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			stored, err := s.Upsert(tc.id, tc.user, tc.secret, tc.base, false)
			require.NoError(t, err)
			assert.Equal(t, tc.wantBase, stored.BaseURL)

			got, err := s.Resolve(tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.user, got.Username)
			assert.Equal(t, tc.secret, got.Secret)
			assert.Equal(t, tc.wantBase, got.BaseURL)
			assert.Equal(t, SourceExplicit, got.Source)
		})
	}
}

func TestUpsertValidation(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{})

	_, err := s.Upsert("  ", "alice", "pw", "", false)
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = s.Upsert("acme", "", "pw", "", false)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestUpsertInvalidatesTokensOnChange(t *testing.T) {
	s, clk := newTestStore(EnvDefaults{})
	_, err := s.Upsert("acme", "alice", "one", "https://a.example.com", false)
	require.NoError(t, err)

	exp := clk.Now().Add(time.Hour)
	s.StoreToken("acme", "https://a.example.com", &oauth2.Token{AccessToken: "t1", Expiry: exp})
	s.StoreToken("acme", "https://b.example.com", &oauth2.Token{AccessToken: "t2", Expiry: exp})

	t.Run("same credentials keep tokens", func(t *testing.T) {
		_, err := s.Upsert("acme", "alice", "one", "https://a.example.com/", false)
		require.NoError(t, err)
		_, ok := s.Token("acme", "https://a.example.com")
		assert.True(t, ok)
	})

	t.Run("secret change drops every token for the profile", func(t *testing.T) {
		_, err := s.Upsert("acme", "alice", "two", "https://a.example.com", false)
		require.NoError(t, err)
		_, ok := s.Token("acme", "https://a.example.com")
		assert.False(t, ok)
		_, ok = s.Token("acme", "https://b.example.com")
		assert.False(t, ok)
	})
}

func TestTokenExpiryBoundary(t *testing.T) {
	s, clk := newTestStore(EnvDefaults{})
	exp := clk.Now().Add(10 * time.Minute)
	s.StoreToken("acme", "https://a.example.com/", &oauth2.Token{AccessToken: "tok", Expiry: exp})

	tok, ok := s.Token("acme", "https://a.example.com")
	require.True(t, ok)
	assert.Equal(t, "tok", tok.AccessToken)

	clk.t = exp.Add(-time.Nanosecond)
	_, ok = s.Token("acme", "https://a.example.com")
	assert.True(t, ok, "usable strictly before expiry")

	clk.t = exp
	_, ok = s.Token("acme", "https://a.example.com")
	assert.False(t, ok, "unusable at expiry")

	clk.Advance(time.Second)
	_, ok = s.Token("acme", "https://a.example.com")
	assert.False(t, ok)
}

func TestResolveWithoutProfiles(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{})

	_, err := s.Resolve("")
	var lre *LoginRequiredError
	require.ErrorAs(t, err, &lre)
	assert.ErrorIs(t, err, ErrLoginRequired)

	_, err = s.Resolve("missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = s.Resolve(EnvDefaultID)
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestResolveUsesActiveProfile(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{Username: "svc", Secret: "pw", BaseURL: "https://env.example.com"})

	_, err := s.Upsert("acme", "alice", "pw", "", true)
	require.NoError(t, err)

	got, err := s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
}

func TestResolveMaterializesEnvDefault(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{Username: "svc", Secret: "pw", BaseURL: "https://env.example.com/"})

	got, err := s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, EnvDefaultID, got.ID)
	assert.Equal(t, SourceEnvironment, got.Source)
	assert.Equal(t, "https://env.example.com", got.BaseURL)
	assert.Equal(t, EnvDefaultID, s.ActiveID())
}

func TestDeleteActiveProfile(t *testing.T) {
	s, clk := newTestStore(EnvDefaults{Username: "svc", Secret: "pw"})

	_, err := s.Upsert("acme", "alice", "pw", "https://a.example.com", true)
	require.NoError(t, err)
	s.StoreToken("acme", "https://a.example.com", &oauth2.Token{AccessToken: "t", Expiry: clk.Now().Add(time.Hour)})

	require.NoError(t, s.Delete("acme"))
	assert.Equal(t, "", s.ActiveID(), "active pointer cleared")
	_, ok := s.Token("acme", "https://a.example.com")
	assert.False(t, ok)

	got, err := s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, EnvDefaultID, got.ID)
	assert.Equal(t, EnvDefaultID, s.ActiveID())
}

func TestDeleteActiveWithoutEnvRequiresLogin(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{})
	_, err := s.Upsert("acme", "alice", "pw", "", true)
	require.NoError(t, err)

	require.NoError(t, s.Delete("acme"))
	_, err = s.Resolve("")
	assert.ErrorIs(t, err, ErrLoginRequired)

	assert.ErrorIs(t, s.Delete("acme"), ErrProfileNotFound)
}

func TestSetActive(t *testing.T) {
	s, _ := newTestStore(EnvDefaults{Username: "svc", Secret: "pw"})
	_, err := s.Upsert("acme", "alice", "pw", "", false)
	require.NoError(t, err)

	require.NoError(t, s.SetActive("acme"))
	assert.Equal(t, "acme", s.ActiveID())

	assert.ErrorIs(t, s.SetActive("nope"), ErrProfileNotFound)

	require.NoError(t, s.SetActive(EnvDefaultID))
	assert.Equal(t, EnvDefaultID, s.ActiveID())
}

func TestListOrderedWithSummary(t *testing.T) {
	s, clk := newTestStore(EnvDefaults{})
	_, err := s.Upsert("zeta", "z", "pw", "https://z.example.com", false)
	require.NoError(t, err)
	_, err = s.Upsert("alpha", "a", "pw", "https://a.example.com", true)
	require.NoError(t, err)
	s.StoreToken("zeta", "https://z.example.com", &oauth2.Token{AccessToken: "t", Expiry: clk.Now().Add(time.Minute)})

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].ID)
	assert.True(t, list[0].Active)
	assert.False(t, list[0].HasValidToken)
	assert.Equal(t, "zeta", list[1].ID)
	assert.True(t, list[1].HasValidToken)

	clk.Advance(2 * time.Minute)
	assert.False(t, s.List()[1].HasValidToken)
}
