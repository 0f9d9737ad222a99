package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/mocks"
	fakes "github.com/target/mmk-gatekeeper/internal/mocks/auth"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestSessions(t *testing.T, store *fakes.MemorySessionStore, now time.Time) *SessionService {
	t.Helper()
	svc, err := NewSessionService(SessionServiceOptions{Store: store, TTL: time.Hour, Now: fixedClock(now)})
	require.NoError(t, err)
	return svc
}

func TestNewSessionService_RequiresStore(t *testing.T) {
	_, err := NewSessionService(SessionServiceOptions{})
	require.Error(t, err)
}

func TestSessionService_LoadNewIsNotPersisted(t *testing.T) {
	store := fakes.NewMemorySessionStore()
	svc := newTestSessions(t, store, time.Now())

	h, err := svc.Load(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, h.IsNew())
	assert.NotEmpty(t, h.ID())
	assert.Zero(t, store.Len())

	u, err := h.User(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSessionService_SetUserPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := fakes.NewMemorySessionStore()
	svc := newTestSessions(t, store, now)

	h, err := svc.Load(ctx, "unknown-id")
	require.NoError(t, err)
	require.True(t, h.IsNew())
	require.NoError(t, h.SetUser(ctx, domainauth.Identity{UserID: "u1"}))

	sess := h.Session()
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	again, err := svc.Load(ctx, h.ID())
	require.NoError(t, err)
	assert.False(t, again.IsNew())
	u, err := again.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.UserID)
}

func TestSessionService_IdentityExpiryCapsSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestSessions(t, fakes.NewMemorySessionStore(), now)

	h, err := svc.Load(ctx, "")
	require.NoError(t, err)
	require.NoError(t, h.SetUser(ctx, domainauth.Identity{UserID: "u1", ExpiresAt: now.Add(10 * time.Minute)}))
	assert.Equal(t, now.Add(10*time.Minute), h.Session().ExpiresAt)
}

func TestSessionService_SetUserRejectsZeroIdentity(t *testing.T) {
	svc := newTestSessions(t, fakes.NewMemorySessionStore(), time.Now())
	h, err := svc.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Error(t, h.SetUser(context.Background(), domainauth.Identity{}))
}

func TestSessionService_ExpiredSessionIsReplaced(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := fakes.NewMemorySessionStore()
	require.NoError(t, store.Save(ctx, domainauth.Session{
		ID:        "old",
		User:      &domainauth.Identity{UserID: "u1"},
		ExpiresAt: now.Add(-time.Minute),
	}))
	svc := newTestSessions(t, store, now)

	h, err := svc.Load(ctx, "old")
	require.NoError(t, err)
	assert.True(t, h.IsNew())
	assert.NotEqual(t, "old", h.ID())
	assert.Zero(t, store.Len(), "expired session is deleted")
}

func TestSessionService_LoadStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	store.EXPECT().Get(gomock.Any(), "abc").Return(domainauth.Session{}, errors.New("redis down"))

	svc, err := NewSessionService(SessionServiceOptions{Store: store})
	require.NoError(t, err)

	_, err = svc.Load(context.Background(), "abc")
	require.Error(t, err)
}

func TestSessionService_Logout(t *testing.T) {
	ctx := context.Background()
	store := fakes.NewMemorySessionStore()
	svc := newTestSessions(t, store, time.Now())

	h, err := svc.Load(ctx, "")
	require.NoError(t, err)
	require.NoError(t, h.SetUser(ctx, domainauth.Identity{UserID: "u1"}))
	require.Equal(t, 1, store.Len())

	require.NoError(t, svc.Logout(ctx, h.ID()))
	assert.Zero(t, store.Len())
	require.NoError(t, svc.Logout(ctx, ""))
}

func TestSessionService_LogoutStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	store.EXPECT().Delete(gomock.Any(), "abc").Return(errors.New("redis down"))

	svc, err := NewSessionService(SessionServiceOptions{Store: store})
	require.NoError(t, err)
	assert.Error(t, svc.Logout(context.Background(), "abc"))
}

func TestSessionHandle_SetRequestUserIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := fakes.NewMemorySessionStore()
	svc := newTestSessions(t, store, time.Now())

	h, err := svc.Load(ctx, "")
	require.NoError(t, err)
	require.NoError(t, h.SetRequestUser(ctx, domainauth.Identity{UserID: "svc"}))

	u, err := h.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "svc", u.UserID)
	assert.False(t, h.Persisted())
	assert.Zero(t, store.Len())

	assert.Error(t, h.SetRequestUser(ctx, domainauth.Identity{}))
}

func TestSessionHandle_Persisted(t *testing.T) {
	ctx := context.Background()
	store := fakes.NewMemorySessionStore()
	svc := newTestSessions(t, store, time.Now())

	h, err := svc.Load(ctx, "")
	require.NoError(t, err)
	assert.False(t, h.Persisted())
	require.NoError(t, h.SetUser(ctx, domainauth.Identity{UserID: "u1"}))
	assert.True(t, h.Persisted())

	reloaded, err := svc.Load(ctx, h.ID())
	require.NoError(t, err)
	assert.False(t, reloaded.IsNew())
	assert.True(t, reloaded.Persisted())
}
