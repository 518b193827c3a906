// ABOUTME: Error values for upstream authentication
// ABOUTME: AuthenticationFailedError aggregates every login attempt for diagnosis

package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthenticationFailed matches any *AuthenticationFailedError via errors.Is.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoBaseURL is returned when a token is requested without a base URL.
	ErrNoBaseURL = errors.New("no base url")
)

// Attempt records one try of the login chain.
type Attempt struct {
	Path    string `json:"path"`
	Payload string `json:"payload"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a Attempt) String() string {
	if a.Status == 0 {
		return fmt.Sprintf("%s (%s): %s", a.Path, a.Payload, a.Error)
	}
	if a.Error != "" {
		return fmt.Sprintf("%s (%s): %d %s", a.Path, a.Payload, a.Status, a.Error)
	}
	return fmt.Sprintf("%s (%s): %d", a.Path, a.Payload, a.Status)
}

// AuthenticationFailedError is returned when no login attempt produced a token.
type AuthenticationFailedError struct {
	ProfileID string
	BaseURL   string
	Attempts  []Attempt
}

func (e *AuthenticationFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("authentication failed for profile %q at %s after %d attempts: %s",
		e.ProfileID, e.BaseURL, len(e.Attempts), strings.Join(parts, "; "))
}

// Is reports whether target is ErrAuthenticationFailed.
func (e *AuthenticationFailedError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}
