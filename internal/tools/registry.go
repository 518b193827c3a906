// ABOUTME: Registers identity-governance tools on an MCP server and runs every invocation
// ABOUTME: Threads the profile argument through context, gates writes, shapes and audits results

package tools

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/idgov-mcp/internal/auth"
	"github.com/2389/idgov-mcp/internal/gateway"
	"github.com/2389/idgov-mcp/internal/metrics"
	"github.com/2389/idgov-mcp/internal/profile"
	"github.com/2389/idgov-mcp/internal/shape"
	"github.com/2389/idgov-mcp/internal/store"
)

// AuditLog records tool invocations. *store.SQLiteStore implements it.
type AuditLog interface {
	AppendInvocation(ctx context.Context, inv *store.Invocation) error
	ListInvocations(ctx context.Context, f store.InvocationFilter) ([]*store.Invocation, error)
}

// Config holds Registry dependencies.
type Config struct {
	Gateway      *gateway.Gateway
	Profiles     *profile.Store
	Shaper       *shape.Shaper
	APIPath      string // e.g. "ECM/api/v5"
	EnableWrites bool
	Audit        AuditLog // optional
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Registry owns tool definitions and the per-invocation pipeline.
type Registry struct {
	gw       *gateway.Gateway
	profiles *profile.Store
	shaper   *shape.Shaper
	apiPath  string
	writes   bool
	audit    AuditLog
	metrics  *metrics.Metrics
	logger   *slog.Logger
	names    []string
}

// New creates a Registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	shaper := cfg.Shaper
	if shaper == nil {
		shaper = shape.New(0, 0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		gw:       cfg.Gateway,
		profiles: cfg.Profiles,
		shaper:   shaper,
		apiPath:  strings.Trim(cfg.APIPath, "/ "),
		writes:   cfg.EnableWrites,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "tools"),
	}, nil
}

// Register adds every tool to srv.
func (r *Registry) Register(srv *mcp.Server) {
	r.registerSession(srv)
	r.registerAPI(srv)
	r.registerIdentity(srv)
	if r.audit != nil {
		r.registerAudit(srv)
	}
	r.logger.Info("tools registered", "count", len(r.names), "writes_enabled", r.writes)
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// EnsureWritesEnabled fails with *WriteDisabledError unless writes are enabled.
func (r *Registry) EnsureWritesEnabled(name string) error {
	if r.writes {
		return nil
	}
	return &WriteDisabledError{Tool: name}
}

type toolDef struct {
	name        string
	title       string
	description string
	write       bool // always gated by EnsureWritesEnabled before the handler runs
	readOnly    bool
}

// addTool registers h under def. In must be a struct; its Profile and JMESPath
// string fields, when present, select the profile and project the result.
func addTool[In any](r *Registry, srv *mcp.Server, def toolDef, h func(context.Context, In) (any, error)) {
	tool := &mcp.Tool{
		Name:        def.name,
		Title:       def.title,
		Description: def.description,
		Annotations: &mcp.ToolAnnotations{Title: def.title, ReadOnlyHint: def.readOnly},
	}
	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		res := r.invoke(ctx, def, stringField(in, "Profile"), stringField(in, "JMESPath"), func(ctx context.Context) (any, error) {
			return h(ctx, in)
		})
		return res, nil, nil
	})
	r.names = append(r.names, def.name)
}

// invoke runs one tool call and converts its outcome into a result. It never
// returns a protocol error.
func (r *Registry) invoke(ctx context.Context, def toolDef, profileID, projection string, call func(context.Context) (any, error)) *mcp.CallToolResult {
	start := time.Now()
	invocationID := uuid.New().String()
	ctx = auth.WithProfile(ctx, profileID)

	value, err := r.run(ctx, def, projection, call)

	var (
		res       *mcp.CallToolResult
		outcome   = outcomeOK
		errorKind string
	)
	switch {
	case err == nil:
		res = successResult(r.shaper, value)
	case errors.Is(err, profile.ErrLoginRequired):
		outcome = outcomeLoginRequired
		res = loginRequiredResult(r.shaper, err)
	default:
		outcome = outcomeError
		errorKind = errorType(err)
		res = failureResult(r.shaper, err)
	}
	elapsed := time.Since(start)

	if profileID == "" {
		profileID = r.profiles.ActiveID()
	}
	logger := r.logger.With(
		"tool", def.name,
		"invocation_id", invocationID,
		"profile", profileID,
		"outcome", outcome,
		"duration", elapsed,
	)
	if err != nil && outcome == outcomeError {
		logger.Warn("tool call failed", "error_type", errorKind, "error", err)
	} else {
		logger.Info("tool call")
	}

	r.metrics.ToolCall(def.name, outcome, elapsed)
	r.record(ctx, &store.Invocation{
		ID:         invocationID,
		Tool:       def.name,
		ProfileID:  profileID,
		Outcome:    store.Outcome(outcome),
		ErrorType:  errorKind,
		DurationMS: elapsed.Milliseconds(),
	})
	return res
}

func (r *Registry) run(ctx context.Context, def toolDef, projection string, call func(context.Context) (any, error)) (value any, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("tool panicked", "tool", def.name, "panic", v)
			value, err = nil, panicError(v)
		}
	}()

	if def.write {
		if err := r.EnsureWritesEnabled(def.name); err != nil {
			return nil, err
		}
	}

	value, err = call(ctx)
	if err != nil {
		return nil, err
	}
	if projection != "" {
		projected, perr := shape.Project(projection, value)
		if perr != nil {
			return nil, invalid("jmespath", perr.Error())
		}
		value = projected
	}
	return value, nil
}

func (r *Registry) record(ctx context.Context, inv *store.Invocation) {
	if r.audit == nil {
		return
	}
	if err := r.audit.AppendInvocation(context.WithoutCancel(ctx), inv); err != nil {
		r.logger.Warn("failed to record invocation", "tool", inv.Tool, "error", err)
	}
}

// endpoint returns the upstream path for an API operation.
func (r *Registry) endpoint(op string) string {
	if r.apiPath == "" {
		return "/" + op
	}
	return "/" + r.apiPath + "/" + op
}

// stringField reads a string field by name from a struct value. Input types
// are plain structs, so reflection avoids a method per input type.
func stringField(v any, name string) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return ""
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || f.Kind() != reflect.String {
		return ""
	}
	return strings.TrimSpace(f.String())
}
