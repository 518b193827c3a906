// ABOUTME: Request-scoped profile selection carried through context.Context
// ABOUTME: Lets nested calls within one tool invocation share the same profile

package auth

import (
	"context"
	"strings"
)

// profileContextKey is the key type for storing the profile ID in context.Context.
type profileContextKey struct{}

// WithProfile returns a context carrying profileID. An empty ID leaves ctx unchanged.
func WithProfile(ctx context.Context, profileID string) context.Context {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return ctx
	}
	return context.WithValue(ctx, profileContextKey{}, profileID)
}

// ProfileFromContext returns the profile ID attached by WithProfile, or "".
func ProfileFromContext(ctx context.Context) string {
	id, _ := ctx.Value(profileContextKey{}).(string)
	return id
}
