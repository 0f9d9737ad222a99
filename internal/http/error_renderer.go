package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/target/mmk-gatekeeper/internal/service"
)

// RenderAuthErrorParams groups inputs for RenderAuthError.
type RenderAuthErrorParams struct {
	Err       error
	LoginPath string
	Logger    *slog.Logger
}

// RenderAuthError is the error boundary for the guard. Unauthenticated browsers are
// sent to the login path with a return_to, API callers get 401 JSON, and any other
// error is a 500 whose detail is only logged.
func RenderAuthError(w http.ResponseWriter, r *http.Request, p RenderAuthErrorParams) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if errors.Is(p.Err, service.ErrUnauthenticated) {
		if p.LoginPath != "" && IsBrowserRequest(r) && r.Method == http.MethodGet {
			q := url.Values{"return_to": {safeRedirectPath(r.URL.RequestURI())}}
			w.Header().Set("Location", p.LoginPath+"?"+q.Encode())
			w.WriteHeader(http.StatusSeeOther)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatekeeper"`)
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     service.ErrUnauthenticated,
		})
		return
	}

	logger.ErrorContext(r.Context(), "authentication error",
		"error", p.Err, "method", r.Method, "path", r.URL.Path)
	WriteError(w, ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: "internal_error",
		Err:     errors.New("internal server error"),
	})
}
