// ABOUTME: Converts handler values and errors into MCP tool results
// ABOUTME: Login-required gets its own non-error shape so clients can prompt for credentials

package tools

import (
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/idgov-mcp/internal/auth"
	"github.com/2389/idgov-mcp/internal/gateway"
	"github.com/2389/idgov-mcp/internal/profile"
	"github.com/2389/idgov-mcp/internal/shape"
)

// Error types reported in failure envelopes.
const (
	TypeAuthenticationFailed = "authentication_failed"
	TypeMissingConfiguration = "missing_configuration"
	TypeUpstream             = "upstream_error"
	TypeWriteDisabled        = "write_disabled"
	TypeValidation           = "validation_error"
	TypeProfileNotFound      = "profile_not_found"
	TypeInternal             = "internal_error"
)

// Invocation outcomes recorded in metrics and the audit log.
const (
	outcomeOK            = "ok"
	outcomeError         = "error"
	outcomeLoginRequired = "login_required"
)

var requiredLoginFields = []string{"username", "password", "base_url"}

// successResult shapes value into text plus an object-typed structured payload.
func successResult(shaper *shape.Shaper, value any) *mcp.CallToolResult {
	shaped := shaper.Shape(value)
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: shaped.Text}},
		StructuredContent: asObject(shaped.Structured),
	}
}

// asObject wraps non-object values because structured content must be a JSON object.
func asObject(v any) any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": v}
}

func loginRequiredResult(shaper *shape.Shaper, err error) *mcp.CallToolResult {
	body := map[string]any{
		"success":        false,
		"loginRequired":  true,
		"message":        err.Error(),
		"requiredFields": requiredLoginFields,
		"hint":           "Call the login tool with username, password and base_url, or configure IDGOV_USERNAME, IDGOV_PASSWORD and IDGOV_BASE_URL.",
	}
	var lr *profile.LoginRequiredError
	if errors.As(err, &lr) && lr.ProfileID != "" {
		body["profile"] = lr.ProfileID
	}
	res := successResult(shaper, body)
	res.StructuredContent = body
	return res
}

func failureResult(shaper *shape.Shaper, err error) *mcp.CallToolResult {
	body := map[string]any{
		"success": false,
		"error":   describeError(err),
	}
	res := successResult(shaper, body)
	res.StructuredContent = body
	res.IsError = true
	return res
}

// errorType classifies err for the envelope, metrics and the audit log.
func errorType(err error) string {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return TypeAuthenticationFailed
	case errors.Is(err, gateway.ErrMissingConfig):
		return TypeMissingConfiguration
	case errors.Is(err, gateway.ErrUpstream):
		return TypeUpstream
	case errors.Is(err, ErrWriteDisabled):
		return TypeWriteDisabled
	case errors.Is(err, ErrValidation), errors.Is(err, profile.ErrInvalidProfile):
		return TypeValidation
	case errors.Is(err, profile.ErrProfileNotFound):
		return TypeProfileNotFound
	default:
		return TypeInternal
	}
}

func describeError(err error) map[string]any {
	out := map[string]any{
		"type":    errorType(err),
		"message": err.Error(),
	}

	var (
		authErr     *auth.AuthenticationFailedError
		upErr       *gateway.UpstreamError
		missingErr  *gateway.MissingConfigError
		writeErr    *WriteDisabledError
		validateErr *ValidationError
	)
	switch {
	case errors.As(err, &authErr):
		out["profile"] = authErr.ProfileID
		out["baseUrl"] = authErr.BaseURL
		out["attempts"] = authErr.Attempts
	case errors.As(err, &upErr):
		out["status"] = upErr.Status
		out["reason"] = upErr.Reason
		out["method"] = upErr.Method
		out["url"] = upErr.URL
		if upErr.Body != "" {
			out["body"] = upErr.Body
		}
	case errors.As(err, &missingErr):
		out["setting"] = missingErr.Setting
		out["envVar"] = missingErr.EnvVar
	case errors.As(err, &writeErr):
		out["tool"] = writeErr.Tool
		out["hint"] = "Set IDGOV_ENABLE_WRITES=true (or writes.enabled in the config file) and restart the server."
	case errors.As(err, &validateErr):
		if validateErr.Field != "" {
			out["field"] = validateErr.Field
		}
	}
	return out
}

// panicError converts a recovered panic value into an error.
func panicError(v any) error {
	return fmt.Errorf("tool panicked: %v", v)
}
