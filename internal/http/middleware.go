package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
	"github.com/target/mmk-gatekeeper/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			}
			if ww.ctx == nil {
				ww.ctx = r.Context()
			}
			if id, ok := IdentityFromContext(ww.ctx); ok {
				attrs = append(attrs, slog.String("user_id", id.UserID), slog.String("strategy", id.Strategy))
			}
			logger.InfoContext(r.Context(), "http", attrs...)
		})
	}
}

// respWriter records the status and, via RequireAuthentication, the request context
// seen by the handler so the access log can name the user.
type respWriter struct {
	http.ResponseWriter
	status int
	ctx    context.Context
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal_error",
						Err:     errors.New("internal server error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type browserRequestKey struct{}

// BrowserDetection marks each request as browser or API so error boundaries can pick
// between a login redirect and a JSON error.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if v, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return v
	}
	return isBrowserRequest(r)
}

// isBrowserRequest treats /api/ routes, credentialed calls and XHR as API traffic.
// Everything else is a browser when it accepts text/html or sends no Accept at all.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if r.Header.Get("Authorization") != "" || strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// SessionManager loads and ends sessions keyed by cookie value.
type SessionManager interface {
	Load(ctx context.Context, id string) (*service.SessionHandle, error)
	Logout(ctx context.Context, id string) error
}

// Guard is the subset of service.Guard used by the middleware.
type Guard interface {
	EnsureAuthenticated(
		ctx context.Context,
		in service.GuardInput,
		override ...ports.StrategyDefinition,
	) (domainauth.Outcome, error)
}

// AuthOptions configures RequireAuthentication.
type AuthOptions struct {
	Sessions SessionManager
	Cookie   CookieConfig
	// LoginPath receives browsers that end up unauthenticated. Empty means 401 for everyone.
	LoginPath string
	// Override, when set, replaces the chain for every request through this middleware.
	Override []ports.StrategyDefinition
	// RouteOverrides is consulted by path when Override is empty.
	RouteOverrides RouteOverrides
	Logger         *slog.Logger
}

// RequireAuthentication runs the guard before next. Requests that resolve an identity
// continue with the identity and session in context; redirects are written by the
// guard's responder; everything else goes to RenderAuthError.
func RequireAuthentication(guard Guard, opts AuthOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			handle, err := opts.Sessions.Load(ctx, opts.Cookie.sessionID(r))
			if err != nil {
				RenderAuthError(w, r, RenderAuthErrorParams{Err: err, Logger: logger})
				return
			}

			override := opts.Override
			if len(override) == 0 {
				override, _ = opts.RouteOverrides.For(r.URL.Path)
			}

			responder := &redirectResponder{w: w}
			outcome, err := guard.EnsureAuthenticated(ctx, service.GuardInput{
				HTTP:      r,
				Session:   handle,
				Responder: responder,
			}, override...)
			if err != nil {
				RenderAuthError(w, r, RenderAuthErrorParams{Err: err, LoginPath: opts.LoginPath, Logger: logger})
				return
			}
			if outcome.IsRedirect() {
				return
			}

			id, _ := outcome.Identity()
			if handle.IsNew() && handle.Persisted() {
				opts.Cookie.set(w, r, handle.ID(), handle.Session().ExpiresAt)
			}

			ctx = SetIdentityInContext(SetSessionInContext(ctx, handle), id)
			if rw, ok := w.(*respWriter); ok {
				rw.ctx = ctx
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects identities below required. It must run inside RequireAuthentication.
func RequireRole(required domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     service.ErrUnauthenticated,
				})
				return
			}
			if !hasRequiredRole(id.Role, required) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hasRequiredRole applies the hierarchy guest < user < admin.
func hasRequiredRole(have, required domainauth.Role) bool {
	levels := map[domainauth.Role]int{
		domainauth.RoleGuest: 0,
		domainauth.RoleUser:  1,
		domainauth.RoleAdmin: 2,
	}
	h, okH := levels[have]
	req, okR := levels[required]
	return okH && okR && h >= req
}
