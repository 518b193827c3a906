// ABOUTME: Error types surfaced by upstream calls
// ABOUTME: UpstreamError carries status, reason and a bounded body excerpt

package gateway

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds the body excerpt kept on UpstreamError, in characters.
const maxErrorBody = 2000

var (
	// ErrUpstream matches any *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream error")

	// ErrMissingConfig matches any *MissingConfigError via errors.Is.
	ErrMissingConfig = errors.New("missing configuration")
)

// UpstreamError is a non-success HTTP status returned by the upstream API.
type UpstreamError struct {
	Method string
	URL    string
	Status int
	Reason string
	Body   string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s %s returned %d %s", e.Method, e.URL, e.Status, e.Reason)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is reports whether target is ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// MissingConfigError names a setting that must be provided before a call can be made.
type MissingConfigError struct {
	Setting string
	EnvVar  string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s is not set (pass %s or set %s)", e.Setting, e.Setting, e.EnvVar)
}

// Is reports whether target is ErrMissingConfig.
func (e *MissingConfigError) Is(target error) bool {
	return target == ErrMissingConfig
}

func missingBaseURL() *MissingConfigError {
	return &MissingConfigError{Setting: "base_url", EnvVar: "IDGOV_BASE_URL"}
}

// excerpt returns at most limit characters of s.
func excerpt(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
