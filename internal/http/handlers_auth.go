package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
)

// LoginFlow starts an interactive login and hands back the path to resume after it.
type LoginFlow interface {
	Start(ctx context.Context, returnTo string) (string, error)
	TakeReturnTo(ctx context.Context, state string) string
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Sessions SessionManager
	Flow     LoginFlow // optional; nil disables /auth/login
	Cookie   CookieConfig
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login starts the IdP round trip.
// GET /auth/login?return_to=<optional path>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.Flow == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "login_unavailable",
			Err:     errors.New("interactive login is not configured"),
		})
		return
	}

	returnTo := safeRedirectPath(r.URL.Query().Get("return_to"))
	authURL, err := h.Flow.Start(r.Context(), returnTo)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "login start failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("could not start login"),
		})
		return
	}
	w.Header().Set("Location", authURL)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusFound)
}

// Callback runs behind RequireAuthentication with the oidc strategy as the override,
// so by the time it executes the identity is cached and the cookie is set.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	dest := "/"
	if h.Flow != nil {
		dest = safeRedirectPath(h.Flow.TakeReturnTo(r.Context(), r.URL.Query().Get("state")))
	}
	w.Header().Set("Location", dest)
	w.WriteHeader(http.StatusFound)
}

// Logout ends the session server-side and clears the cookie.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id := h.Cookie.sessionID(r); id != "" {
		if err := h.Sessions.Logout(r.Context(), id); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.Cookie.clear(w, r)

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
		return
	}
	w.Header().Set("Location", safeRedirectPath(r.FormValue("return_to")))
	w.WriteHeader(http.StatusSeeOther)
}

// Status reports the cached identity without running the chain.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id := h.Cookie.sessionID(r)
	if id == "" {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	handle, err := h.Sessions.Load(r.Context(), id)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "load session failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "session_unavailable"})
		return
	}
	user, err := handle.User(r.Context())
	if err != nil || user == nil {
		if handle.IsNew() {
			h.Cookie.clear(w, r)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	sess := handle.Session()
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          userPayload(*user),
		"expires_at":    sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// WhoAmI echoes the identity resolved by the guard.
// GET /api/whoami.
func (h *AuthHandlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required"})
		return
	}
	WriteJSON(w, http.StatusOK, userPayload(id))
}

func userPayload(id domainauth.Identity) map[string]any {
	return map[string]any{
		"id":         id.UserID,
		"first_name": id.FirstName,
		"last_name":  id.LastName,
		"email":      id.Email,
		"groups":     id.Groups,
		"role":       id.Role,
		"strategy":   id.Strategy,
	}
}

// wantsJSON reports whether an AJAX or API caller made the request.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}
