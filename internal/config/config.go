// ABOUTME: Configuration loading and parsing for idgov-mcp
// ABOUTME: Merges defaults, an optional YAML or TOML file and IDGOV_* environment overrides

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file and environment.
const (
	DefaultAPIPath            = "ECM/api/v5"
	DefaultTimeout            = 30 * time.Second
	DefaultMaxTextChars       = 20000
	DefaultMaxStructuredChars = 4000
	DefaultHTTPAddr           = "127.0.0.1:8765"
	DefaultTailscaleHostname  = "idgov-mcp"
)

// Transports accepted by server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the complete idgov-mcp configuration
type Config struct {
	Upstream  UpstreamConfig  `yaml:"upstream" toml:"upstream"`
	Writes    WritesConfig    `yaml:"writes" toml:"writes"`
	Results   ResultsConfig   `yaml:"results" toml:"results"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// UpstreamConfig describes the identity API and its optional service account.
type UpstreamConfig struct {
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	APIPath  string `yaml:"api_path" toml:"api_path"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// WritesConfig holds the process-wide write switch
type WritesConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// ResultsConfig bounds tool result sizes, in characters
type ResultsConfig struct {
	MaxTextChars       int `yaml:"max_text_chars" toml:"max_text_chars"`
	MaxStructuredChars int `yaml:"max_structured_chars" toml:"max_structured_chars"`
}

// ServerConfig selects the MCP transport
type ServerConfig struct {
	Transport string `yaml:"transport" toml:"transport"`
	HTTPAddr  string `yaml:"http_addr" toml:"http_addr"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"` // bearer verification for HTTP; empty disables
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// AuditConfig enables the local invocation log
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"` // empty disables
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			APIPath: DefaultAPIPath,
			Timeout: DefaultTimeout,
		},
		Results: ResultsConfig{
			MaxTextChars:       DefaultMaxTextChars,
			MaxStructuredChars: DefaultMaxStructuredChars,
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			HTTPAddr:  DefaultHTTPAddr,
		},
		Tailscale: TailscaleConfig{Hostname: DefaultTailscaleHostname},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first when present. path may be empty; otherwise files ending in
// .toml are decoded as TOML and anything else as YAML. ${VAR_NAME} patterns in
// the file are expanded, then IDGOV_* environment variables override file values.
func Load(path string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg, os.LookupEnv)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	normalizeLimits(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyEnv overlays IDGOV_* variables. lookup is os.LookupEnv outside tests.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = parseBool(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			// Garbage becomes 0 and falls back to the default in normalizeLimits.
			n, _ := strconv.Atoi(strings.TrimSpace(v))
			*dst = n
		}
	}

	str("IDGOV_BASE_URL", &cfg.Upstream.BaseURL)
	str("IDGOV_API_PATH", &cfg.Upstream.APIPath)
	str("IDGOV_USERNAME", &cfg.Upstream.Username)
	str("IDGOV_PASSWORD", &cfg.Upstream.Password)
	str("IDGOV_TIMEOUT", &cfg.Upstream.TimeoutRaw)
	boolean("IDGOV_ENABLE_WRITES", &cfg.Writes.Enabled)
	integer("IDGOV_MAX_TEXT_CHARS", &cfg.Results.MaxTextChars)
	integer("IDGOV_MAX_STRUCTURED_CHARS", &cfg.Results.MaxStructuredChars)
	str("IDGOV_TRANSPORT", &cfg.Server.Transport)
	str("IDGOV_HTTP_ADDR", &cfg.Server.HTTPAddr)
	str("IDGOV_JWT_SECRET", &cfg.Server.JWTSecret)
	boolean("IDGOV_TAILSCALE", &cfg.Tailscale.Enabled)
	str("IDGOV_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
	str("IDGOV_AUDIT_PATH", &cfg.Audit.Path)
	str("IDGOV_LOG_LEVEL", &cfg.Logging.Level)
	str("IDGOV_LOG_FORMAT", &cfg.Logging.Format)
}

// parseBool accepts 1/true/yes/on in any case; everything else is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// normalizeLimits replaces non-positive result limits with the defaults.
func normalizeLimits(cfg *Config) {
	if cfg.Results.MaxTextChars <= 0 {
		cfg.Results.MaxTextChars = DefaultMaxTextChars
	}
	if cfg.Results.MaxStructuredChars <= 0 {
		cfg.Results.MaxStructuredChars = DefaultMaxStructuredChars
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Upstream.TimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Upstream.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing upstream.timeout %q: %w", cfg.Upstream.TimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("upstream.timeout must be positive, got %s", d)
	}
	cfg.Upstream.Timeout = d
	return nil
}

// Validate checks that all configuration fields are consistent.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Server.Transport)
	}

	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("upstream.base_url must use http or https scheme")
		}
	}

	if c.Server.Transport == TransportHTTP && !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required for the http transport (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// HasServiceAccount reports whether environment-default credentials are configured.
func (c *Config) HasServiceAccount() bool {
	return c.Upstream.Username != "" && c.Upstream.Password != ""
}
