// ABOUTME: Error values returned by the profile store
// ABOUTME: LoginRequiredError signals that a caller must supply credentials

package profile

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound indicates an explicitly named profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidProfile indicates an upsert was missing required fields.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrLoginRequired matches any *LoginRequiredError via errors.Is.
	ErrLoginRequired = errors.New("login required")
)

// LoginRequiredError is returned when no profile can be resolved for a call.
// The tool layer turns it into guidance rather than a generic failure.
type LoginRequiredError struct {
	ProfileID string // requested profile, empty when none was named
	Reason    string
}

func (e *LoginRequiredError) Error() string {
	if e.ProfileID != "" {
		return fmt.Sprintf("login required for profile %q: %s", e.ProfileID, e.Reason)
	}
	return "login required: " + e.Reason
}

// Is reports whether target is ErrLoginRequired.
func (e *LoginRequiredError) Is(target error) bool {
	return target == ErrLoginRequired
}
