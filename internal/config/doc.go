// Package config handles configuration loading for idgov-mcp.
//
// # Overview
//
// Load merges, in increasing precedence: built-in defaults, an optional config
// file, and IDGOV_* environment variables. A .env file in the working
// directory is loaded into the environment first when present.
//
// # Configuration File
//
// Files ending in .toml are decoded as TOML; anything else is YAML. Values
// can reference environment variables with ${VAR_NAME}:
//
//	upstream:
//	  base_url: "https://tenant.example.com"
//	  api_path: "ECM/api/v5"
//	  username: "svc-mcp"
//	  password: "${IDGOV_SERVICE_PASSWORD}"
//	  timeout: "30s"
//
//	writes:
//	  enabled: false
//
//	results:
//	  max_text_chars: 20000
//	  max_structured_chars: 4000
//
//	server:
//	  transport: "http"        # stdio (default) or http
//	  http_addr: "127.0.0.1:8765"
//	  jwt_secret: "${IDGOV_JWT_SECRET}"
//
//	tailscale:
//	  enabled: false
//	  hostname: "idgov-mcp"
//
//	audit:
//	  path: "/var/lib/idgov-mcp/audit.db"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// # Environment Overrides
//
//	IDGOV_BASE_URL, IDGOV_API_PATH, IDGOV_USERNAME, IDGOV_PASSWORD,
//	IDGOV_TIMEOUT, IDGOV_ENABLE_WRITES, IDGOV_MAX_TEXT_CHARS,
//	IDGOV_MAX_STRUCTURED_CHARS, IDGOV_TRANSPORT, IDGOV_HTTP_ADDR,
//	IDGOV_JWT_SECRET, IDGOV_TAILSCALE, IDGOV_TAILSCALE_HOSTNAME,
//	IDGOV_AUDIT_PATH, IDGOV_LOG_LEVEL, IDGOV_LOG_FORMAT
//
// Result limits that are zero, negative or not numbers fall back to the
// defaults. Boolean variables accept 1, true, yes and on.
package config
