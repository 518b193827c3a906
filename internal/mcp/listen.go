// ABOUTME: HTTP listener lifecycle for the MCP server, on a TCP address or a tailnet
// ABOUTME: Tailscale mode runs an embedded tsnet node with optional HTTPS or Funnel

package mcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/idgov-mcp/internal/config"
)

const shutdownTimeout = 5 * time.Second

// ServeHTTP serves Handler on addr, or on a tailnet node when ts.Enabled,
// until ctx is cancelled. It then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string, ts config.TailscaleConfig) error {
	var (
		ln     net.Listener
		tsnode *tsnet.Server
		err    error
	)
	if ts.Enabled {
		tsnode, ln, err = s.listenTailscale(ctx, ts)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over HTTP", "addr", ln.Addr().String(), "endpoint", "/mcp", "auth", s.verifier != nil)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if tsnode != nil {
			_ = tsnode.Close()
		}
		return err
	case <-ctx.Done():
	}

	// The original context is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", httpServer.Shutdown(shutdownCtx))
	if tsnode != nil {
		errs = appendCloseError(errs, "tailscale shutdown", tsnode.Close())
	}
	return errors.Join(errs...)
}

// listenTailscale starts a tsnet node and returns a listener on it.
func (s *Server) listenTailscale(ctx context.Context, ts config.TailscaleConfig) (*tsnet.Server, net.Listener, error) {
	stateDir, err := resolveTailscaleStateDir(ts.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(ts.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	node := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(ts.Hostname, status)

	ln, err := s.tailscaleListener(node, ts)
	if err != nil {
		_ = node.Close()
		return nil, nil, err
	}
	return node, ln, nil
}

// tailscaleListener picks plain HTTP, HTTPS with tailnet certs, or Funnel.
func (s *Server) tailscaleListener(node *tsnet.Server, ts config.TailscaleConfig) (net.Listener, error) {
	switch {
	case ts.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := node.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case ts.HTTPS:
		s.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := node.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := node.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := node.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "idgov-mcp", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}
