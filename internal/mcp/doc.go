// Package mcp serves the identity tools to Model Context Protocol clients.
//
// # Transports
//
// RunStdio speaks MCP over stdin/stdout, the usual mode for desktop clients
// that spawn the server as a subprocess. Logs must go to stderr.
//
// ServeHTTP exposes the Streamable HTTP transport:
//
//   - /mcp - MCP Streamable HTTP endpoint
//   - /healthz - liveness probe with the registered tool count
//   - /metrics - Prometheus metrics
//
// The listener is either a TCP address or an embedded Tailscale node, which
// can serve plain HTTP on :80, HTTPS with tailnet certificates on :443, or a
// public Funnel.
//
// # Authentication
//
// When a TokenVerifier is configured, /mcp requires
//
//	Authorization: Bearer <token>
//
// with an HS256 token minted by `idgov-mcp token`. /healthz and /metrics stay
// open.
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "idgov": {
//	      "command": "idgov-mcp",
//	      "args": ["serve"],
//	      "env": {"IDGOV_BASE_URL": "https://tenant.example.com"}
//	    }
//	  }
//	}
package mcp
