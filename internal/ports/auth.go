package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"net/http"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
)

// Strategy is one activation of a verification scheme bound to a single request.
//
// Run returns Success, Redirect or Failure. A non-nil error is fatal: the chain stops
// and the error reaches the caller untouched. Recoverable problems (no credentials,
// wrong password, upstream timeout) must be reported as Failure instead.
type Strategy interface {
	Run(ctx context.Context) (domainauth.Outcome, error)
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(ctx context.Context) (domainauth.Outcome, error)

func (f StrategyFunc) Run(ctx context.Context) (domainauth.Outcome, error) { return f(ctx) }

// StrategyConstructor creates a fresh Strategy for one authentication attempt.
type StrategyConstructor func(req StrategyRequest) Strategy

// StrategyDefinition is a registry entry. Abstract definitions are templates: they are
// never instantiated or run, so New may be nil for them.
//
// Stateless strategies read a credential that the caller sends on every request
// (API keys, signed tokens, Basic auth). Their identities are cached for the current
// request only and never persisted as a session.
type StrategyDefinition struct {
	Name      string
	Abstract  bool
	Stateless bool
	New       StrategyConstructor
}

// StrategyRequest is the context a strategy instance is bound to.
type StrategyRequest struct {
	HTTP    *http.Request
	Session SessionState
}

// Param returns a request parameter from the query string or a parsed form body.
func (r StrategyRequest) Param(name string) string {
	if r.HTTP == nil {
		return ""
	}
	return r.HTTP.FormValue(name)
}

// Header returns a request header value.
func (r StrategyRequest) Header(name string) string {
	if r.HTTP == nil {
		return ""
	}
	return r.HTTP.Header.Get(name)
}

// SessionState is the per-session identity cell read by the guard and written by the chain.
type SessionState interface {
	// User returns the cached identity or nil when the session is anonymous.
	User(ctx context.Context) (*domainauth.Identity, error)
	// SetUser caches id for the rest of the session.
	SetUser(ctx context.Context, id domainauth.Identity) error
}

// RequestScopedState is implemented by session states that can hold an identity for
// the current request without persisting it.
type RequestScopedState interface {
	SessionState
	SetRequestUser(ctx context.Context, id domainauth.Identity) error
}

// Responder is the narrow response-layer contract used when a strategy redirects.
type Responder interface {
	Redirect(location string, status int, permanent bool)
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// CredentialStore resolves username/password credentials for the password strategy.
type CredentialStore interface {
	// Lookup returns ErrCredentialNotFound when no credential exists for username.
	Lookup(ctx context.Context, username string) (domainauth.Credential, error)
	Create(ctx context.Context, cred domainauth.Credential) error
}

// FlowStateStore keeps short-lived values (OIDC state and nonce) between the redirect
// to the identity provider and the callback.
type FlowStateStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}
