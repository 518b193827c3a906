// ABOUTME: MCP server exposing the identity tools over stdio or Streamable HTTP
// ABOUTME: HTTP mode adds bearer verification, a health probe and Prometheus metrics

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/idgov-mcp/internal/auth"
	"github.com/2389/idgov-mcp/internal/tools"
)

// ServerName is advertised to clients during initialize.
const ServerName = "idgov-mcp"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

var (
	errMissingAuth  = errors.New("missing authorization")
	errInvalidToken = errors.New("invalid or expired token")
)

// Config holds configuration for the MCP server.
type Config struct {
	Registry *tools.Registry
	Version  string
	Logger   *slog.Logger

	// TokenVerifier guards /mcp in HTTP mode. Nil leaves it open, which is
	// only reasonable on loopback or a tailnet.
	TokenVerifier auth.TokenVerifier

	// Gatherer backs /metrics; nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server wraps an MCP server with the registered identity tools.
type Server struct {
	server   *sdk.Server
	registry *tools.Registry
	verifier auth.TokenVerifier
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	srv := sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: version}, &sdk.ServerOptions{
		Instructions: "Identity-governance tools. Call login (or configure IDGOV_USERNAME, IDGOV_PASSWORD and IDGOV_BASE_URL) before other tools. " +
			"Mutating tools require IDGOV_ENABLE_WRITES=true.",
	})
	cfg.Registry.Register(srv)

	return &Server{
		server:   srv,
		registry: cfg.Registry,
		verifier: cfg.TokenVerifier,
		gatherer: gatherer,
		logger:   logger.With("component", "mcp"),
	}, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *sdk.Server {
	return s.server
}

// RunStdio serves one client over stdin/stdout until ctx is cancelled or the
// client disconnects. Nothing else may write to stdout while it runs.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "tools", len(s.registry.Names()))
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handler returns the HTTP routes: /mcp, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	streamable := sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server {
		return s.server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.requireBearer(limitBody(streamable)))
	mux.Handle("/mcp/", s.requireBearer(limitBody(streamable)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"name":   ServerName,
		"tools":  len(s.registry.Names()),
	}); err != nil {
		s.logger.Warn("failed to encode health response", "error", err)
	}
}

// requireBearer rejects requests without a valid bearer token when a
// verifier is configured.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	if s.verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := s.extractSubject(r)
		if err != nil {
			s.logger.Debug("rejected MCP request", "remote", r.RemoteAddr, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="idgov-mcp"`)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		s.logger.Debug("MCP request", "subject", subject, "method", r.Method)
		next.ServeHTTP(w, r)
	})
}

// extractSubject returns the verified subject of the request's bearer token.
func (s *Server) extractSubject(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingAuth
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", errors.New("empty token")
	}

	subject, err := s.verifier.Verify(token)
	if err != nil {
		return "", errInvalidToken
	}
	return subject, nil
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
