package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-gatekeeper/internal/adapters/oidc"
	mockauth "github.com/target/mmk-gatekeeper/internal/mocks/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

func TestRouter_OIDCLoginRoundTrip(t *testing.T) {
	h := newHarness(t)
	idp := mockauth.NewMockAuthProvider()
	idp.DefaultUser.Groups = []string{"admins"}

	flow, err := oidc.NewFlow(oidc.FlowOptions{
		Provider:    idp,
		Store:       mockauth.NewMemoryFlowStore(),
		CallbackURL: "http://gatekeeper.test/auth/callback",
	})
	require.NoError(t, err)
	strategy, err := oidc.NewStrategy(flow, discardLogger())
	require.NoError(t, err)
	require.NoError(t, h.registry.Register(h.def("api_key", ""), strategy.Definition()))
	h.registry.Seal()

	router := NewRouter(RouterOptions{
		Guard:            h.guard,
		Sessions:         h.sessions,
		Flow:             flow,
		CallbackPath:     flow.CallbackPath(),
		CallbackOverride: []ports.StrategyDefinition{strategy.Definition()},
		LoginPath:        "/auth/login",
		Logger:           discardLogger(),
	})

	// API callers are never sent to the IdP.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?return_to=%2Fapi%2Fadmin%2Fwhoami", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://mock-idp/auth?state=state-1", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=xyz&state=state-1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/admin/whoami", rec.Header().Get("Location"))
	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.Equal(t, 1, h.runs["api_key"], "callback runs only the oidc strategy")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/whoami", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"mock-user-1"`)
	assert.Contains(t, rec.Body.String(), `"strategy":"oidc"`)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)
	assert.Equal(t, 1, h.runs["api_key"])

	// Replaying the callback does not log anyone in.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=xyz&state=state-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	h := newHarness(t)
	router := NewRouter(RouterOptions{Guard: h.guard, Sessions: h.sessions, Logger: discardLogger()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
