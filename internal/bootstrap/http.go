package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-gatekeeper/config"
	httpx "github.com/target/mmk-gatekeeper/internal/http"
)

const defaultLoginRoute = "/auth/login"

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	HTTP        config.HTTPConfig
	LoginPath   string
	Auth        *AuthComponents
	ReadyChecks map[string]httpx.HealthCheck
	Logger      *slog.Logger
}

// NewHTTPServer builds the router and wraps it in a server. It does not listen.
func NewHTTPServer(cfg HTTPServerConfig) (*http.Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("auth components are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := httpx.RouterOptions{
		Guard:    cfg.Auth.Guard,
		Sessions: cfg.Auth.Sessions,
		Cookie: httpx.CookieConfig{
			Name:   cfg.HTTP.SessionCookie,
			Domain: cfg.HTTP.CookieDomain,
			Secure: cfg.HTTP.SecureCookies(),
		},
		LoginPath:      cfg.LoginPath,
		RouteOverrides: cfg.Auth.RouteOverrides,
		ReadyChecks:    cfg.ReadyChecks,
		Logger:         logger,
	}
	if cfg.Auth.Flow != nil {
		opts.Flow = cfg.Auth.Flow
		opts.CallbackPath = cfg.Auth.Flow.CallbackPath()
		opts.CallbackOverride = cfg.Auth.CallbackOverride
	} else if opts.LoginPath == defaultLoginRoute {
		// Nothing serves the login route without a flow; send browsers a 401 instead.
		opts.LoginPath = ""
	}

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(opts),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// Serve runs srv on ln until ctx is cancelled, then shuts it down within timeout.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}
