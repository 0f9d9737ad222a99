package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-gatekeeper/internal/adapters/authroles"
	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	mockauth "github.com/target/mmk-gatekeeper/internal/mocks/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
	"github.com/target/mmk-gatekeeper/internal/service"
)

// harness wires a real registry, manager, guard and session service over in-memory stores.
type harness struct {
	registry *service.StrategyRegistry
	sessions *service.SessionService
	store    *mockauth.MemorySessionStore
	guard    *service.Guard
	runs     map[string]int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: mockauth.NewMemorySessionStore(), runs: map[string]int{}}

	var err error
	h.registry, err = service.NewStrategyRegistry()
	require.NoError(t, err)
	h.sessions, err = service.NewSessionService(service.SessionServiceOptions{Store: h.store})
	require.NoError(t, err)
	mgr, err := service.NewAuthenticationManager(service.AuthenticationManagerOptions{
		Registry: h.registry,
		Roles:    authroles.StaticRoleMapper{AdminGroup: "admins", UserGroup: "users"},
	})
	require.NoError(t, err)
	h.guard, err = service.NewGuard(service.GuardOptions{Manager: mgr})
	require.NoError(t, err)
	return h
}

// def returns a strategy that counts its runs and resolves userID, or fails when userID is empty.
func (h *harness) def(name, userID string, groups ...string) ports.StrategyDefinition {
	return ports.StrategyDefinition{
		Name: name,
		New: func(ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(context.Context) (domainauth.Outcome, error) {
				h.runs[name]++
				return domainauth.Success(domainauth.Identity{UserID: userID, Groups: groups}), nil
			})
		},
	}
}

// urlRedirect sends the caller to the "url" request parameter using opts.
func urlRedirect(opts ...domainauth.RedirectOptions) ports.StrategyDefinition {
	return ports.StrategyDefinition{
		Name: "url_redirect",
		New: func(req ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(context.Context) (domainauth.Outcome, error) {
				return domainauth.RedirectTo(req.Param("url"), opts...), nil
			})
		},
	}
}

func (h *harness) middleware(opts AuthOptions) func(http.Handler) http.Handler {
	opts.Sessions = h.sessions
	return RequireAuthentication(h.guard, opts)
}

var echoIdentity = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]string{"user": id.UserID, "strategy": id.Strategy, "role": string(id.Role)})
})

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookie {
			return c
		}
	}
	return nil
}

func TestRequireAuthentication_RedirectStatusPolicy(t *testing.T) {
	tests := []struct {
		name       string
		opts       []domainauth.RedirectOptions
		wantStatus int
	}{
		{"default", nil, http.StatusFound},
		{"permanent", []domainauth.RedirectOptions{{Permanent: true}}, http.StatusMovedPermanently},
		{"explicit status", []domainauth.RedirectOptions{{Status: http.StatusUnauthorized}}, http.StatusUnauthorized},
		{"explicit beats permanent", []domainauth.RedirectOptions{{Permanent: true, Status: 307}}, 307},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.registry.Register(urlRedirect(tt.opts...)))

			called := false
			handler := h.middleware(AuthOptions{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			}))

			target := "/api/resource?url=" + url.QueryEscape("../odd path?x=1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "../odd path?x=1", rec.Header().Get("Location"))
			assert.False(t, called)
			assert.Nil(t, sessionCookie(t, rec))
			assert.Equal(t, 0, h.store.Len())
		})
	}
}

func TestRequireAuthentication_ChainRunsOncePerSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Register(h.def("A", ""), h.def("B", "WINNA", "users")))
	handler := h.middleware(AuthOptions{})(echoIdentity)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"WINNA","strategy":"B","role":"user"}`, rec.Body.String())
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, h.runs)

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Positive(t, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"WINNA","strategy":"B","role":"user"}`, rec.Body.String())
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, h.runs)
	assert.Nil(t, sessionCookie(t, rec), "existing session keeps its cookie")
}

func TestRequireAuthentication_StatelessCallersLeaveNoSessions(t *testing.T) {
	h := newHarness(t)
	token := h.def("token", "svc-account", "users")
	token.Stateless = true
	require.NoError(t, h.registry.Register(token))
	handler := h.middleware(AuthOptions{})(echoIdentity)

	for range 50 {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		req.Header.Set("Authorization", "Bearer x")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user":"svc-account","strategy":"token","role":"user"}`, rec.Body.String())
		assert.Nil(t, sessionCookie(t, rec))
	}
	assert.Equal(t, 50, h.runs["token"])
	assert.Zero(t, h.store.Len())
}

func TestRequireAuthentication_Unauthenticated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Register(h.def("A", "")))
	handler := h.middleware(AuthOptions{LoginPath: "/auth/login"})(echoIdentity)

	t.Run("api caller gets 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Bearer realm="gatekeeper"`, rec.Header().Get("WWW-Authenticate"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "authentication_required", body["error"])
	})

	t.Run("browser goes to login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/reports?page=2", nil)
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/auth/login?return_to=%2Freports%3Fpage%3D2", rec.Header().Get("Location"))
	})

	assert.Equal(t, 0, h.store.Len())
}

func TestRequireAuthentication_FatalErrorIs500(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Register(ports.StrategyDefinition{
		Name: "broken",
		New: func(ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(context.Context) (domainauth.Outcome, error) {
				return domainauth.Failure(), errors.New("db password leaked here")
			})
		},
	}))

	rec := httptest.NewRecorder()
	h.middleware(AuthOptions{})(echoIdentity).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "leaked")
}

func TestRequireAuthentication_Overrides(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Register(h.def("A", "global")))
	m1, m2 := h.def("M1", ""), h.def("M2", "WINNA")

	t.Run("route override by prefix", func(t *testing.T) {
		handler := h.middleware(AuthOptions{RouteOverrides: RouteOverrides{"/api/machine/": {m1, m2}}})(echoIdentity)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/machine/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"user":"WINNA"`)
		assert.Equal(t, 0, h.runs["A"])
		assert.Equal(t, 1, h.runs["M1"])
	})

	t.Run("explicit override wins over route table", func(t *testing.T) {
		handler := h.middleware(AuthOptions{
			Override:       []ports.StrategyDefinition{h.def("A", "global")},
			RouteOverrides: RouteOverrides{"/api/": {m1, m2}},
		})(echoIdentity)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		assert.Contains(t, rec.Body.String(), `"user":"global"`)
	})
}

func TestRequireRole(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Register(h.def("A", "alice", "users")))
	handler := h.middleware(AuthOptions{})(RequireRole(domainauth.RoleAdmin)(echoIdentity))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	RequireRole(domainauth.RoleUser)(echoIdentity).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHasRequiredRole(t *testing.T) {
	assert.True(t, hasRequiredRole(domainauth.RoleAdmin, domainauth.RoleUser))
	assert.True(t, hasRequiredRole(domainauth.RoleUser, domainauth.RoleUser))
	assert.False(t, hasRequiredRole(domainauth.RoleGuest, domainauth.RoleUser))
	assert.False(t, hasRequiredRole("", domainauth.RoleGuest))
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    bool
	}{
		{"api path", "/api/whoami", map[string]string{"Accept": "text/html"}, false},
		{"html", "/reports", map[string]string{"Accept": "text/html,*/*"}, true},
		{"no accept", "/reports", nil, true},
		{"json", "/reports", map[string]string{"Accept": "application/json"}, false},
		{"credentialed", "/reports", map[string]string{"Accept": "text/html", "Authorization": "Basic x"}, false},
		{"xhr", "/reports", map[string]string{"X-Requested-With": "XMLHttpRequest"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, IsBrowserRequest(r))
		})
	}
}

func TestRecover(t *testing.T) {
	handler := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
