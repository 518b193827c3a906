// ABOUTME: Generic api_request tool for endpoints without a dedicated tool
// ABOUTME: Mutating methods are write-gated before any network call

package tools

import (
	"context"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/idgov-mcp/internal/gateway"
)

type apiRequestInput struct {
	Endpoint string         `json:"endpoint" jsonschema:"path relative to the base URL such as /ECM/api/v5/getUser, or an absolute URL"`
	Method   string         `json:"method,omitempty" jsonschema:"HTTP method; defaults to GET"`
	Query    map[string]any `json:"query,omitempty" jsonschema:"query parameters; array values repeat the key and null values are dropped"`
	Body     any            `json:"body,omitempty" jsonschema:"JSON request body"`
	BaseURL  string         `json:"base_url,omitempty" jsonschema:"overrides the profile base URL for this call"`
	Profile  string         `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
	SkipAuth bool           `json:"skip_auth,omitempty" jsonschema:"send the request without a bearer token"`
	JMESPath string         `json:"jmespath,omitempty" jsonschema:"JMESPath expression applied to the response before it is returned"`
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
}

// isReadMethod reports whether method never modifies upstream state.
func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (r *Registry) registerAPI(srv *mcp.Server) {
	addTool(r, srv, toolDef{
		name:  "api_request",
		title: "API request",
		description: "Call any identity API endpoint with the active or named profile. " +
			"GET, HEAD and OPTIONS are always allowed; other methods require writes to be enabled.",
	}, r.apiRequest)
}

func (r *Registry) apiRequest(ctx context.Context, in apiRequestInput) (any, error) {
	endpoint := strings.TrimSpace(in.Endpoint)
	if endpoint == "" {
		return nil, invalid("endpoint", "must not be empty")
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return nil, invalid("method", "unsupported HTTP method "+method)
	}
	if !isReadMethod(method) {
		if err := r.EnsureWritesEnabled("api_request"); err != nil {
			return nil, err
		}
	}

	resp, err := r.gw.Call(ctx, gateway.Request{
		Endpoint: endpoint,
		Method:   method,
		Query:    in.Query,
		Body:     in.Body,
		BaseURL:  in.BaseURL,
		SkipAuth: in.SkipAuth,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
