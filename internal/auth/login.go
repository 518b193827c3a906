// ABOUTME: Ordered login candidates and token/expiry extraction from vendor responses
// ABOUTME: Tolerates several field spellings and one level of "data" nesting

package auth

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTokenLifetime applies when the login response reports no expiry.
	DefaultTokenLifetime = 3600 * time.Second

	minCacheLifetime = 30 * time.Second
	renewalPercent   = 92

	// maxLifetimeSeconds is the largest lifetime a time.Duration can hold.
	// Upstreams that report an absolute epoch in "expires" land well below it.
	maxLifetimeSeconds = math.MaxInt64 / int64(time.Second)
)

var (
	tokenFields  = []string{"access_token", "accessToken", "token", "id_token", "jwt"}
	expiryFields = []string{"expires_in", "expiresIn", "expires", "expiry", "token_expires_in"}
)

// payloadShape builds one login request body.
type payloadShape struct {
	name  string
	build func(username, password string) map[string]string
}

var payloadShapes = []payloadShape{
	{
		name: "password",
		build: func(username, password string) map[string]string {
			return map[string]string{"username": username, "password": password}
		},
	},
	{
		name: "password_grant",
		build: func(username, password string) map[string]string {
			return map[string]string{"username": username, "password": password, "grant_type": "password"}
		},
	},
}

// loginCandidate is one (path, payload) pair of the fallback chain.
type loginCandidate struct {
	path    string
	payload payloadShape
}

// loginCandidates returns the chain in the order it must be tried.
func loginCandidates(apiPath string) []loginCandidate {
	paths := []string{"/ECM/api/login", "/api/login"}
	if seg := strings.Trim(apiPath, "/ "); seg != "" {
		paths = append(paths, "/"+seg+"/login")
	}

	seen := make(map[string]bool, len(paths))
	var out []loginCandidate
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		for _, shape := range payloadShapes {
			out = append(out, loginCandidate{path: p, payload: shape})
		}
	}
	return out
}

// lookupField returns the first present value among names, checked at the top
// level and then under a "data" object.
func lookupField(body map[string]any, names []string) (any, bool) {
	for _, name := range names {
		if v, ok := body[name]; ok && v != nil {
			return v, true
		}
	}
	if data, ok := body["data"].(map[string]any); ok {
		for _, name := range names {
			if v, ok := data[name]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

// extractToken finds a non-empty bearer string in a login response.
func extractToken(body map[string]any) string {
	for _, level := range []map[string]any{body, nested(body)} {
		for _, name := range tokenFields {
			if s, ok := level[name].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func nested(body map[string]any) map[string]any {
	data, _ := body["data"].(map[string]any)
	return data
}

// extractLifetime reads the reported token lifetime, falling back to
// DefaultTokenLifetime when absent, unparsable or non-positive. Values past
// the range of time.Duration are clamped.
func extractLifetime(body map[string]any) time.Duration {
	v, ok := lookupField(body, expiryFields)
	if !ok {
		return DefaultTokenLifetime
	}

	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return DefaultTokenLifetime
		}
		seconds = parsed
	default:
		return DefaultTokenLifetime
	}
	if !(seconds > 0) {
		return DefaultTokenLifetime
	}
	if seconds >= float64(maxLifetimeSeconds) {
		return time.Duration(maxLifetimeSeconds) * time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

// cacheLifetime applies the early-renewal margin.
func cacheLifetime(lifetime time.Duration) time.Duration {
	early := lifetime / 100 * renewalPercent
	if early < minCacheLifetime {
		return minCacheLifetime
	}
	return early
}
