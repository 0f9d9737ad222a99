package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// RouterOptions holds everything the HTTP router needs.
type RouterOptions struct {
	Guard    Guard
	Sessions SessionManager
	Flow     LoginFlow // optional
	// CallbackPath and CallbackOverride wire the IdP callback; both are set together.
	CallbackPath     string
	CallbackOverride []ports.StrategyDefinition
	Cookie           CookieConfig
	LoginPath        string
	RouteOverrides   RouteOverrides
	ReadyChecks      map[string]HealthCheck
	Logger           *slog.Logger
}

// NewRouter creates the gatekeeper mux and wraps it with the standard middleware.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	h := &AuthHandlers{Sessions: opts.Sessions, Flow: opts.Flow, Cookie: opts.Cookie, Logger: logger}

	authOpts := AuthOptions{
		Sessions:       opts.Sessions,
		Cookie:         opts.Cookie,
		LoginPath:      opts.LoginPath,
		RouteOverrides: opts.RouteOverrides,
		Logger:         logger,
	}
	guarded := RequireAuthentication(opts.Guard, authOpts)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(opts.ReadyChecks, logger))

	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	if opts.Flow != nil {
		mux.HandleFunc("GET /auth/login", h.Login)
	}
	if opts.CallbackPath != "" && len(opts.CallbackOverride) > 0 {
		cbOpts := authOpts
		cbOpts.Override = opts.CallbackOverride
		// Browsers that fail the callback go to 401, not back into the login loop.
		cbOpts.LoginPath = ""
		mux.Handle("GET "+opts.CallbackPath, RequireAuthentication(opts.Guard, cbOpts)(http.HandlerFunc(h.Callback)))
	}

	mux.Handle("GET /api/whoami", guarded(http.HandlerFunc(h.WhoAmI)))
	mux.Handle("GET /api/admin/whoami",
		guarded(RequireRole(domainauth.RoleAdmin)(http.HandlerFunc(h.WhoAmI))))

	return Recover(logger)(Logging(logger)(BrowserDetection()(mux)))
}
