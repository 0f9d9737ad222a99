package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/mocks"
	fakes "github.com/target/mmk-gatekeeper/internal/mocks/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

func newTestGuard(t *testing.T, defs ...ports.StrategyDefinition) *Guard {
	t.Helper()
	g, err := NewGuard(GuardOptions{Manager: newTestManager(t, defs...)})
	require.NoError(t, err)
	return g
}

func TestNewGuard_RequiresManager(t *testing.T) {
	_, err := NewGuard(GuardOptions{})
	require.Error(t, err)
}

// Registry [A fails, B resolves WINNA]: the first call runs both in order and caches,
// the second call on the same session runs neither.
func TestGuard_CachesWinnerForSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockStrategy(ctrl)
	b := mocks.NewMockStrategy(ctrl)
	gomock.InOrder(
		a.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), nil).Times(1),
		b.EXPECT().Run(gomock.Any()).Return(domainauth.Success(winna()), nil).Times(1),
	)

	defA := newCountingDefinition("A", a)
	defB := newCountingDefinition("B", b)
	guard := newTestGuard(t, defA.def, defB.def)
	session := fakes.NewMemorySessionState(nil)
	ctx := context.Background()

	outcome, err := guard.EnsureAuthenticated(ctx, GuardInput{Session: session})
	require.NoError(t, err)
	id, ok := outcome.Identity()
	require.True(t, ok)
	assert.Equal(t, "WINNA", id.UserID)

	outcome, err = guard.EnsureAuthenticated(ctx, GuardInput{Session: session})
	require.NoError(t, err)
	id, ok = outcome.Identity()
	require.True(t, ok)
	assert.Equal(t, "WINNA", id.UserID)

	assert.Equal(t, 1, defA.built)
	assert.Equal(t, 1, defB.built)
}

func TestGuard_CachedIdentitySkipsChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStrategy(ctrl)
	s.EXPECT().Run(gomock.Any()).Times(0)
	def := newCountingDefinition("never", s)

	guard := newTestGuard(t, def.def)
	cached := winna()
	outcome, err := guard.EnsureAuthenticated(context.Background(), GuardInput{
		Session: fakes.NewMemorySessionState(&cached),
	})
	require.NoError(t, err)
	assert.True(t, outcome.IsSuccess())
	assert.Zero(t, def.built)
}

func TestGuard_UnauthenticatedLeavesCacheEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockStrategy(ctrl)
	a.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), nil)

	guard := newTestGuard(t, newCountingDefinition("a", a).def)
	session := fakes.NewMemorySessionState(nil)

	outcome, err := guard.EnsureAuthenticated(context.Background(), GuardInput{Session: session})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, outcome.IsFailure())

	var unauth *UnauthenticatedError
	require.ErrorAs(t, err, &unauth)

	u, err := session.User(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestGuard_RedirectPolicy(t *testing.T) {
	tests := []struct {
		name       string
		opts       []domainauth.RedirectOptions
		wantStatus int
		wantPerm   bool
	}{
		{"default", nil, http.StatusFound, false},
		{"permanent", []domainauth.RedirectOptions{{Permanent: true}}, http.StatusMovedPermanently, true},
		{"explicit status", []domainauth.RedirectOptions{{Status: http.StatusUnauthorized}}, http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			// Reads the url parameter and redirects to it verbatim.
			urlRedirect := ports.StrategyDefinition{Name: "url", New: func(req ports.StrategyRequest) ports.Strategy {
				return ports.StrategyFunc(func(context.Context) (domainauth.Outcome, error) {
					return domainauth.RedirectTo(req.Param("url"), tt.opts...), nil
				})
			}}

			responder := mocks.NewMockResponder(ctrl)
			responder.EXPECT().Redirect("../odd path?x=1", tt.wantStatus, tt.wantPerm).Times(1)

			session := fakes.NewMemorySessionState(nil)
			req := httptest.NewRequest(http.MethodGet, "/secret?url=..%2Fodd+path%3Fx%3D1", nil)

			guard := newTestGuard(t, urlRedirect)
			outcome, err := guard.EnsureAuthenticated(context.Background(), GuardInput{
				HTTP:      req,
				Session:   session,
				Responder: responder,
			})
			require.NoError(t, err, "a redirect is not an error")
			assert.True(t, outcome.IsRedirect())
			assert.Zero(t, session.SetCalls)
		})
	}
}

func TestGuard_RedirectWithoutResponder(t *testing.T) {
	redirect := ports.StrategyDefinition{Name: "r", New: func(ports.StrategyRequest) ports.Strategy {
		return ports.StrategyFunc(func(context.Context) (domainauth.Outcome, error) {
			return domainauth.RedirectTo("/login"), nil
		})
	}}
	guard := newTestGuard(t, redirect)
	_, err := guard.EnsureAuthenticated(context.Background(), GuardInput{Session: fakes.NewMemorySessionState(nil)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestGuard_OverrideIsPassedThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	global := mocks.NewMockStrategy(ctrl)
	global.EXPECT().Run(gomock.Any()).Times(0)
	only := mocks.NewMockStrategy(ctrl)
	only.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), nil)

	guard := newTestGuard(t, newCountingDefinition("global", global).def)
	_, err := guard.EnsureAuthenticated(context.Background(),
		GuardInput{Session: fakes.NewMemorySessionState(nil)},
		newCountingDefinition("only", only).def,
	)
	var unauth *UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, []string{"only"}, unauth.Attempted)
}

func TestGuard_UnauthenticatedNamesDefaultChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockStrategy(ctrl)
	b := mocks.NewMockStrategy(ctrl)
	a.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), nil)
	b.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), nil)

	template := ports.StrategyDefinition{Name: "template", Abstract: true}
	guard := newTestGuard(t, template, newCountingDefinition("api_key", a).def, newCountingDefinition("jwt", b).def)

	_, err := guard.EnsureAuthenticated(context.Background(), GuardInput{Session: fakes.NewMemorySessionState(nil)})
	var unauth *UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, []string{"api_key", "jwt"}, unauth.Attempted)
	assert.Contains(t, unauth.Error(), "api_key")
}

func TestGuard_FatalErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	boom := errors.New("boom")
	s := mocks.NewMockStrategy(ctrl)
	s.EXPECT().Run(gomock.Any()).Return(domainauth.Failure(), boom)

	guard := newTestGuard(t, newCountingDefinition("s", s).def)
	_, err := guard.EnsureAuthenticated(context.Background(), GuardInput{Session: fakes.NewMemorySessionState(nil)})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestGuard_SessionReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := mocks.NewMockSessionState(ctrl)
	session.EXPECT().User(gomock.Any()).Return(nil, errors.New("decode failed"))

	guard := newTestGuard(t)
	_, err := guard.EnsureAuthenticated(context.Background(), GuardInput{Session: session})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestUnauthenticatedError_Message(t *testing.T) {
	assert.Equal(t, "authentication required", (&UnauthenticatedError{}).Error())
	assert.Contains(t, (&UnauthenticatedError{Attempted: []string{"jwt"}}).Error(), "jwt")
}
