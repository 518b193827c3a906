// ABOUTME: recent_invocations tool reading the local invocation audit log
// ABOUTME: Registered only when an audit store is configured

package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/idgov-mcp/internal/store"
)

type recentInvocationsInput struct {
	Tool    string `json:"tool,omitempty" jsonschema:"only invocations of this tool"`
	Outcome string `json:"outcome,omitempty" jsonschema:"only this outcome: ok, error or login_required"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum entries to return; default 100, at most 1000"`
}

func (r *Registry) registerAudit(srv *mcp.Server) {
	addTool(r, srv, toolDef{
		name:        "recent_invocations",
		title:       "Recent invocations",
		description: "List recent tool invocations from the local audit log, newest first. Arguments and secrets are never recorded.",
		readOnly:    true,
	}, r.recentInvocations)
}

func (r *Registry) recentInvocations(ctx context.Context, in recentInvocationsInput) (any, error) {
	outcome := store.Outcome(strings.TrimSpace(in.Outcome))
	switch outcome {
	case "", store.OutcomeOK, store.OutcomeError, store.OutcomeLoginRequired:
	default:
		return nil, invalid("outcome", "must be one of ok, error or login_required")
	}
	if in.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}

	entries, err := r.audit.ListInvocations(ctx, store.InvocationFilter{
		Tool:    strings.TrimSpace(in.Tool),
		Outcome: outcome,
		Limit:   in.Limit,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":     true,
		"count":       len(entries),
		"invocations": entries,
	}, nil
}
