package httpx

import (
	"context"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/service"
)

// Unexported context key types to avoid collisions across packages.
type (
	identityKey struct{}
	sessionKey  struct{}
)

// SetIdentityInContext returns a child context carrying the resolved identity.
func SetIdentityInContext(ctx context.Context, id domainauth.Identity) context.Context {
	if id.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity resolved for the request, if any.
func IdentityFromContext(ctx context.Context) (domainauth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domainauth.Identity)
	return id, ok && !id.IsZero()
}

// SetSessionInContext returns a child context carrying the session handle.
// A nil handle leaves ctx unchanged.
func SetSessionInContext(ctx context.Context, h *service.SessionHandle) context.Context {
	if h == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, h)
}

// SessionFromContext returns the session handle loaded for the request.
func SessionFromContext(ctx context.Context) (*service.SessionHandle, bool) {
	h, ok := ctx.Value(sessionKey{}).(*service.SessionHandle)
	return h, ok && h != nil
}

// IsGuestUser reports whether the request is unauthenticated or resolved to the guest role.
func IsGuestUser(ctx context.Context) bool {
	id, ok := IdentityFromContext(ctx)
	return !ok || id.Role == domainauth.RoleGuest
}
