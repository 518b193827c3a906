// ABOUTME: Identity tools for users, entitlements, roles and accounts
// ABOUTME: Payloads are passed to the vendor API unchanged apart from paging and filter keys

package tools

import (
	"context"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/idgov-mcp/internal/gateway"
)

const maxPageSize = 500

type listUsersInput struct {
	Filter     map[string]any `json:"filter,omitempty" jsonschema:"filter criteria such as {\"statuskey\":\"1\"}, passed through as filtercriteria"`
	Attributes []string       `json:"attributes,omitempty" jsonschema:"user attributes to return"`
	Offset     int            `json:"offset,omitempty" jsonschema:"records to skip"`
	Max        int            `json:"max,omitempty" jsonschema:"maximum records to return (1-500)"`
	Profile    string         `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
	JMESPath   string         `json:"jmespath,omitempty" jsonschema:"JMESPath expression applied to the response"`
}

type getUserInput struct {
	Username   string   `json:"username" jsonschema:"user name to look up"`
	Attributes []string `json:"attributes,omitempty" jsonschema:"user attributes to return"`
	Profile    string   `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
	JMESPath   string   `json:"jmespath,omitempty" jsonschema:"JMESPath expression applied to the response"`
}

type createUserInput struct {
	Attributes map[string]any `json:"attributes" jsonschema:"user attributes such as username, firstname, lastname and email"`
	Profile    string         `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
}

type updateUserInput struct {
	Username   string         `json:"username" jsonschema:"user name to update"`
	Attributes map[string]any `json:"attributes" jsonschema:"attributes to change"`
	Profile    string         `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
}

type listEntitlementsInput struct {
	System          string `json:"system,omitempty" jsonschema:"target system (the vendor calls this the endpoint)"`
	EntitlementType string `json:"entitlement_type,omitempty" jsonschema:"entitlement type within the system"`
	Username        string `json:"username,omitempty" jsonschema:"only entitlements held by this user"`
	Offset          int    `json:"offset,omitempty" jsonschema:"records to skip"`
	Max             int    `json:"max,omitempty" jsonschema:"maximum records to return (1-500)"`
	Profile         string `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
	JMESPath        string `json:"jmespath,omitempty" jsonschema:"JMESPath expression applied to the response"`
}

type listRolesInput struct {
	RoleName string `json:"role_name,omitempty" jsonschema:"role name to match"`
	RoleType string `json:"role_type,omitempty" jsonschema:"role type to match"`
	Offset   int    `json:"offset,omitempty" jsonschema:"records to skip"`
	Max      int    `json:"max,omitempty" jsonschema:"maximum records to return (1-500)"`
	Profile  string `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
	JMESPath string `json:"jmespath,omitempty" jsonschema:"JMESPath expression applied to the response"`
}

type roleChangeInput struct {
	Username  string `json:"username" jsonschema:"user receiving or losing the role"`
	RoleName  string `json:"role_name" jsonschema:"role to assign or revoke"`
	Requestor string `json:"requestor,omitempty" jsonschema:"user recorded as requestor; defaults to the profile username"`
	Profile   string `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
}

type listAccountsInput struct {
	Username string `json:"username,omitempty" jsonschema:"only accounts owned by this user"`
	System   string `json:"system,omitempty" jsonschema:"target system (the vendor calls this the endpoint)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"records to skip"`
	Max      int    `json:"max,omitempty" jsonschema:"maximum records to return (1-500)"`
	Profile  string `json:"profile,omitempty" jsonschema:"profile id; defaults to the active profile"`
	JMESPath string `json:"jmespath,omitempty" jsonschema:"JMESPath expression applied to the response"`
}

func (r *Registry) registerIdentity(srv *mcp.Server) {
	addTool(r, srv, toolDef{
		name:        "list_users",
		title:       "List users",
		description: "Search users with optional filter criteria and paging.",
		readOnly:    true,
	}, r.listUsers)

	addTool(r, srv, toolDef{
		name:        "get_user",
		title:       "Get user",
		description: "Fetch one user by user name.",
		readOnly:    true,
	}, r.getUser)

	addTool(r, srv, toolDef{
		name:        "create_user",
		title:       "Create user",
		description: "Create a user from the given attributes. Requires writes to be enabled.",
		write:       true,
	}, r.createUser)

	addTool(r, srv, toolDef{
		name:        "update_user",
		title:       "Update user",
		description: "Change attributes of an existing user. Requires writes to be enabled.",
		write:       true,
	}, r.updateUser)

	addTool(r, srv, toolDef{
		name:        "list_entitlements",
		title:       "List entitlements",
		description: "List entitlements, optionally for one target system, entitlement type or user.",
		readOnly:    true,
	}, r.listEntitlements)

	addTool(r, srv, toolDef{
		name:        "list_roles",
		title:       "List roles",
		description: "List roles, optionally filtered by name or type.",
		readOnly:    true,
	}, r.listRoles)

	addTool(r, srv, toolDef{
		name:        "assign_role",
		title:       "Assign role",
		description: "Request that a role be added to a user. Requires writes to be enabled.",
		write:       true,
	}, r.assignRole)

	addTool(r, srv, toolDef{
		name:        "revoke_role",
		title:       "Revoke role",
		description: "Request that a role be removed from a user. Requires writes to be enabled.",
		write:       true,
	}, r.revokeRole)

	addTool(r, srv, toolDef{
		name:        "list_accounts",
		title:       "List accounts",
		description: "List accounts, optionally for one user or target system.",
		readOnly:    true,
	}, r.listAccounts)
}

// post sends body to an API operation and returns the decoded response.
func (r *Registry) post(ctx context.Context, op string, body map[string]any) (any, error) {
	resp, err := r.gw.Call(ctx, gateway.Request{
		Endpoint: r.endpoint(op),
		Method:   http.MethodPost,
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// withPaging validates and adds offset/max to body.
func withPaging(body map[string]any, offset, max int) error {
	if offset < 0 {
		return invalid("offset", "must not be negative")
	}
	if max < 0 || max > maxPageSize {
		return invalid("max", "must be between 1 and 500")
	}
	if offset > 0 {
		body["offset"] = offset
	}
	if max > 0 {
		body["max"] = max
	}
	return nil
}

// setIf adds key to body when value is not blank.
func setIf(body map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		body[key] = v
	}
}

func (r *Registry) listUsers(ctx context.Context, in listUsersInput) (any, error) {
	body := map[string]any{}
	if len(in.Filter) > 0 {
		body["filtercriteria"] = in.Filter
	}
	if len(in.Attributes) > 0 {
		body["responsefields"] = in.Attributes
	}
	if err := withPaging(body, in.Offset, in.Max); err != nil {
		return nil, err
	}
	return r.post(ctx, "getUser", body)
}

func (r *Registry) getUser(ctx context.Context, in getUserInput) (any, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("username", "must not be empty")
	}
	body := map[string]any{"filtercriteria": map[string]any{"username": username}}
	if len(in.Attributes) > 0 {
		body["responsefields"] = in.Attributes
	}
	return r.post(ctx, "getUser", body)
}

func (r *Registry) createUser(ctx context.Context, in createUserInput) (any, error) {
	if len(in.Attributes) == 0 {
		return nil, invalid("attributes", "must contain at least one attribute")
	}
	return r.post(ctx, "createUser", in.Attributes)
}

func (r *Registry) updateUser(ctx context.Context, in updateUserInput) (any, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("username", "must not be empty")
	}
	if len(in.Attributes) == 0 {
		return nil, invalid("attributes", "must contain at least one attribute")
	}
	body := make(map[string]any, len(in.Attributes)+1)
	for k, v := range in.Attributes {
		body[k] = v
	}
	body["username"] = username
	return r.post(ctx, "updateUser", body)
}

func (r *Registry) listEntitlements(ctx context.Context, in listEntitlementsInput) (any, error) {
	body := map[string]any{}
	setIf(body, "endpoint", in.System)
	setIf(body, "entitlementtype", in.EntitlementType)
	setIf(body, "username", in.Username)
	if err := withPaging(body, in.Offset, in.Max); err != nil {
		return nil, err
	}
	return r.post(ctx, "getEntitlements", body)
}

func (r *Registry) listRoles(ctx context.Context, in listRolesInput) (any, error) {
	body := map[string]any{}
	setIf(body, "role_name", in.RoleName)
	setIf(body, "roletype", in.RoleType)
	if err := withPaging(body, in.Offset, in.Max); err != nil {
		return nil, err
	}
	return r.post(ctx, "getRoles", body)
}

func (r *Registry) assignRole(ctx context.Context, in roleChangeInput) (any, error) {
	return r.changeRole(ctx, in, "ADD")
}

func (r *Registry) revokeRole(ctx context.Context, in roleChangeInput) (any, error) {
	return r.changeRole(ctx, in, "REMOVE")
}

func (r *Registry) changeRole(ctx context.Context, in roleChangeInput, requestType string) (any, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("username", "must not be empty")
	}
	role := strings.TrimSpace(in.RoleName)
	if role == "" {
		return nil, invalid("role_name", "must not be empty")
	}

	requestor := strings.TrimSpace(in.Requestor)
	if requestor == "" {
		p, err := r.gw.ResolveProfile(ctx, "")
		if err != nil {
			return nil, err
		}
		requestor = p.Username
	}

	return r.post(ctx, "createrequest", map[string]any{
		"requestor": requestor,
		"username":  username,
		"roles": []map[string]any{
			{"rolename": role, "requesttype": requestType},
		},
	})
}

func (r *Registry) listAccounts(ctx context.Context, in listAccountsInput) (any, error) {
	body := map[string]any{}
	setIf(body, "username", in.Username)
	setIf(body, "endpoint", in.System)
	if err := withPaging(body, in.Offset, in.Max); err != nil {
		return nil, err
	}
	return r.post(ctx, "getAccounts", body)
}
