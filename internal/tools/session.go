// ABOUTME: Session tools: login, logout, list_profiles, use_profile, session_status
// ABOUTME: Manage credential profiles and report token state without exposing secrets

package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultProfileID names the profile login creates when none is given.
const DefaultProfileID = "default"

type loginInput struct {
	Profile  string `json:"profile,omitempty" jsonschema:"profile id to store these credentials under; defaults to default"`
	Username string `json:"username" jsonschema:"service account or user name"`
	Password string `json:"password" jsonschema:"password for the account"`
	BaseURL  string `json:"base_url,omitempty" jsonschema:"tenant base URL such as https://tenant.example.com; defaults to IDGOV_BASE_URL"`
}

type profileInput struct {
	Profile string `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
}

type useProfileInput struct {
	Profile string `json:"profile" jsonschema:"profile id to make active"`
}

type emptyInput struct{}

func (r *Registry) registerSession(srv *mcp.Server) {
	addTool(r, srv, toolDef{
		name:        "login",
		title:       "Log in",
		description: "Store credentials as a named profile, log in to the identity API and make the profile active.",
	}, r.login)

	addTool(r, srv, toolDef{
		name:        "logout",
		title:       "Log out",
		description: "Remove a profile and its cached tokens. Without a profile argument the active profile is removed.",
	}, r.logout)

	addTool(r, srv, toolDef{
		name:        "list_profiles",
		title:       "List profiles",
		description: "List stored profiles with their base URL, token state and which one is active. Secrets are never returned.",
		readOnly:    true,
	}, r.listProfiles)

	addTool(r, srv, toolDef{
		name:        "use_profile",
		title:       "Use profile",
		description: "Make an existing profile the one used when a tool call does not name a profile.",
	}, r.useProfile)

	addTool(r, srv, toolDef{
		name:        "session_status",
		title:       "Session status",
		description: "Show which profile and base URL a call would use, whether a valid token is cached and whether writes are enabled.",
		readOnly:    true,
	}, r.sessionStatus)
}

func (r *Registry) login(ctx context.Context, in loginInput) (any, error) {
	if in.Username == "" {
		return nil, invalid("username", "must not be empty")
	}
	if in.Password == "" {
		return nil, invalid("password", "must not be empty")
	}
	id := in.Profile
	if id == "" {
		id = DefaultProfileID
	}

	p, tok, err := r.gw.Login(ctx, id, in.Username, in.Password, in.BaseURL)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":        true,
		"profile":        r.summary(p.ID),
		"tokenExpiresAt": tok.Expiry.UTC().Format(time.RFC3339),
		"message":        fmt.Sprintf("Logged in as %s at %s; profile %q is active.", p.Username, p.BaseURL, p.ID),
	}, nil
}

func (r *Registry) logout(_ context.Context, in profileInput) (any, error) {
	id := in.Profile
	if id == "" {
		id = r.profiles.ActiveID()
	}
	if id == "" {
		return nil, invalid("profile", "no profile named and no profile is active")
	}
	if err := r.profiles.Delete(id); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"removed":       id,
		"activeProfile": r.profiles.ActiveID(),
		"message":       fmt.Sprintf("Profile %q and its cached tokens were removed.", id),
	}, nil
}

func (r *Registry) listProfiles(_ context.Context, _ emptyInput) (any, error) {
	return map[string]any{
		"success":       true,
		"activeProfile": r.profiles.ActiveID(),
		"profiles":      r.profiles.List(),
		"writesEnabled": r.writes,
	}, nil
}

func (r *Registry) useProfile(_ context.Context, in useProfileInput) (any, error) {
	if in.Profile == "" {
		return nil, invalid("profile", "must not be empty")
	}
	if err := r.profiles.SetActive(in.Profile); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"activeProfile": in.Profile,
		"profile":       r.summary(in.Profile),
	}, nil
}

func (r *Registry) sessionStatus(ctx context.Context, _ profileInput) (any, error) {
	// The profile argument was already placed on ctx by invoke.
	p, err := r.gw.ResolveProfile(ctx, "")
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"success":       true,
		"profile":       r.summary(p.ID),
		"activeProfile": r.profiles.ActiveID(),
		"writesEnabled": r.writes,
		"hasValidToken": false,
	}

	base, err := r.gw.BaseURLFor(p, "")
	if err != nil {
		out["baseUrl"] = ""
		out["message"] = err.Error()
		return out, nil
	}
	out["baseUrl"] = base
	if tok, ok := r.profiles.Token(p.ID, base); ok {
		out["hasValidToken"] = true
		out["tokenExpiresAt"] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	return out, nil
}

// summary returns the listing view of id, or nil if it no longer exists.
func (r *Registry) summary(id string) any {
	for _, s := range r.profiles.List() {
		if s.ID == id {
			return s
		}
	}
	return nil
}
