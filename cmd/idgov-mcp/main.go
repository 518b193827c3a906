// ABOUTME: Entry point for idgov-mcp, an MCP server for identity-governance APIs
// ABOUTME: Commands: serve (stdio or HTTP), token (mint HTTP bearer tokens), version

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2389/idgov-mcp/internal/auth"
	"github.com/2389/idgov-mcp/internal/config"
	"github.com/2389/idgov-mcp/internal/gateway"
	"github.com/2389/idgov-mcp/internal/mcp"
	"github.com/2389/idgov-mcp/internal/metrics"
	"github.com/2389/idgov-mcp/internal/profile"
	"github.com/2389/idgov-mcp/internal/shape"
	"github.com/2389/idgov-mcp/internal/store"
	"github.com/2389/idgov-mcp/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _     _
(_) __| | __ _  _____   __     _ __ ___   ___ _ __
| |/ _' |/ _' |/ _ \ \ / /____| '_ ' _ \ / __| '_ \
| | (_| | (_| | (_) \ V /_____| | | | | | (__| |_) |
|_|\__,_|\__, |\___/ \_/      |_| |_| |_|\___| .__/
         |___/                               |_|
`

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: idgov-mcp <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Start the MCP server (stdio by default, or --transport http)")
	fmt.Fprintln(w, "  token     Mint a bearer token for the HTTP transport")
	fmt.Fprintln(w, "  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the config file to load, or "" for none.
// Priority: --config flag > IDGOV_CONFIG env var > XDG_CONFIG_HOME/idgov-mcp/config.yaml
// (only when that file exists).
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("IDGOV_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	path := filepath.Join(configDir, "idgov-mcp", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

type serveFlags struct {
	configPath   string
	transport    string
	addr         string
	enableWrites bool
}

func parseServeFlags(args []string) (serveFlags, *pflag.FlagSet, error) {
	var f serveFlags
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "config file (YAML, or TOML with a .toml extension)")
	fs.StringVar(&f.transport, "transport", "", "stdio or http (overrides server.transport)")
	fs.StringVar(&f.addr, "addr", "", "listen address for the http transport (overrides server.http_addr)")
	fs.BoolVar(&f.enableWrites, "enable-writes", false, "allow tools that modify upstream data")
	err := fs.Parse(args)
	return f, fs, err
}

// applyServeFlags overlays explicitly set flags on cfg and revalidates.
func applyServeFlags(cfg *config.Config, f serveFlags, fs *pflag.FlagSet) error {
	if fs.Changed("transport") {
		cfg.Server.Transport = f.transport
	}
	if fs.Changed("addr") {
		cfg.Server.HTTPAddr = f.addr
	}
	if fs.Changed("enable-writes") {
		cfg.Writes.Enabled = f.enableWrites
	}
	return cfg.Validate()
}

func runServe(ctx context.Context, args []string) error {
	flags, fs, err := parseServeFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	configPath := getConfigPath(flags.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyServeFlags(cfg, flags, fs); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}

	// stdout belongs to the stdio transport; everything human-facing goes to stderr.
	logger := setupLogger(cfg.Logging, os.Stderr)
	printStartup(os.Stderr, cfg, configPath)

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("starting idgov-mcp",
		"version", version,
		"config", configPath,
		"transport", cfg.Server.Transport,
		"writes_enabled", cfg.Writes.Enabled,
		"service_account", cfg.HasServiceAccount(),
	)

	if cfg.Server.Transport == config.TransportHTTP {
		if cfg.Server.JWTSecret == "" && !cfg.Tailscale.Enabled && !isLoopback(cfg.Server.HTTPAddr) {
			logger.Warn("HTTP transport has no jwt_secret and listens beyond loopback; anyone who can reach it can call tools",
				"addr", cfg.Server.HTTPAddr)
		}
		return srv.ServeHTTP(ctx, cfg.Server.HTTPAddr, cfg.Tailscale)
	}
	return srv.RunStdio(ctx)
}

// buildServer wires every component from cfg. cleanup releases the audit store.
func buildServer(cfg *config.Config, logger *slog.Logger) (*mcp.Server, func(), error) {
	cleanup := func() {}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	profiles := profile.NewStore(profile.EnvDefaults{
		Username: cfg.Upstream.Username,
		Secret:   cfg.Upstream.Password,
		BaseURL:  cfg.Upstream.BaseURL,
	}, profile.WithLogger(logger))

	httpClient := &http.Client{
		Timeout:   cfg.Upstream.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	authenticator, err := auth.New(auth.Config{
		Store:      profiles,
		HTTPClient: httpClient,
		APIPath:    cfg.Upstream.APIPath,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("creating authenticator: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Store:          profiles,
		Authenticator:  authenticator,
		HTTPClient:     httpClient,
		DefaultBaseURL: cfg.Upstream.BaseURL,
		Metrics:        m,
		Logger:         logger,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("creating gateway: %w", err)
	}

	var audit tools.AuditLog
	if cfg.Audit.Path != "" {
		db, err := store.NewSQLiteStore(cfg.Audit.Path, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening audit log: %w", err)
		}
		audit = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close audit log", "error", err)
			}
		}
	}

	toolRegistry, err := tools.New(tools.Config{
		Gateway:      gw,
		Profiles:     profiles,
		Shaper:       shape.New(cfg.Results.MaxTextChars, cfg.Results.MaxStructuredChars, shape.WithMetrics(m)),
		APIPath:      cfg.Upstream.APIPath,
		EnableWrites: cfg.Writes.Enabled,
		Audit:        audit,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("creating tool registry: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Server.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Server.JWTSecret))
	}

	srv, err := mcp.NewServer(mcp.Config{
		Registry:      toolRegistry,
		Version:       version,
		Logger:        logger,
		TokenVerifier: verifier,
		Gatherer:      registry,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("creating MCP server: %w", err)
	}
	return srv, cleanup, nil
}

func printStartup(w io.Writer, cfg *config.Config, configPath string) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	gray.Fprintf(w, "    version: %s\n\n", version)

	if configPath == "" {
		configPath = "(none, environment only)"
	}
	base := cfg.Upstream.BaseURL
	if base == "" {
		base = "(set per profile via login)"
	}

	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Config:    %s\n", configPath)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Upstream:  %s\n", base)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Transport: %s", cfg.Server.Transport)
	if cfg.Server.Transport == config.TransportHTTP {
		if cfg.Tailscale.Enabled {
			fmt.Fprint(w, " via tailscale ")
			cyan.Fprint(w, cfg.Tailscale.Hostname)
			if cfg.Tailscale.Funnel {
				yellow.Fprint(w, " [funnel]")
			}
		} else {
			fmt.Fprintf(w, " on %s", cfg.Server.HTTPAddr)
		}
	}
	fmt.Fprintln(w)
	green.Fprint(w, "    ▶ ")
	fmt.Fprint(w, "Writes:    ")
	if cfg.Writes.Enabled {
		yellow.Fprintln(w, "enabled")
	} else {
		gray.Fprintln(w, "disabled")
	}
	fmt.Fprintln(w)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func runToken(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	secret := fs.String("secret", "", "HS256 secret (defaults to IDGOV_JWT_SECRET or server.jwt_secret)")
	subject := fs.String("subject", "", "who the token is for")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	configPath := fs.StringP("config", "c", "", "config file to read server.jwt_secret from")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *secret == "" {
		cfg, err := config.Load(getConfigPath(*configPath))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		*secret = cfg.Server.JWTSecret
	}
	if *secret == "" {
		return errors.New("a secret is required: pass --secret or set IDGOV_JWT_SECRET")
	}
	if *subject == "" {
		return errors.New("--subject is required")
	}
	if *ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	token, err := auth.NewJWTVerifier([]byte(*secret)).Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
