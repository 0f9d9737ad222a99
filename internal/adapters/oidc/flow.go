package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// DefaultFlowTTL bounds how long a user has to finish logging in at the IdP.
const DefaultFlowTTL = 10 * time.Minute

// ErrInvalidState is returned when the callback state is unknown, expired, or reused.
var ErrInvalidState = errors.New("invalid or expired login state")

// flowState is what survives the round trip to the IdP.
type flowState struct {
	Nonce    string `json:"nonce"`
	ReturnTo string `json:"return_to"`
}

// FlowOptions configures a Flow.
type FlowOptions struct {
	Provider ports.AuthProvider
	Store    ports.FlowStateStore
	// CallbackURL is where the IdP sends the browser back; only its path is matched.
	CallbackURL string
	TTL         time.Duration
}

// Flow pairs an AuthProvider with a FlowStateStore so the login round trip can
// survive across instances.
type Flow struct {
	provider     ports.AuthProvider
	store        ports.FlowStateStore
	callbackURL  string
	callbackPath string
	ttl          time.Duration
}

// NewFlow validates opts.
func NewFlow(opts FlowOptions) (*Flow, error) {
	if opts.Provider == nil {
		return nil, errors.New("auth provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("flow state store is required")
	}
	u, err := url.Parse(opts.CallbackURL)
	if err != nil || opts.CallbackURL == "" {
		return nil, fmt.Errorf("invalid callback URL %q", opts.CallbackURL)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultFlowTTL
	}
	return &Flow{
		provider:     opts.Provider,
		store:        opts.Store,
		callbackURL:  opts.CallbackURL,
		callbackPath: path,
		ttl:          ttl,
	}, nil
}

// CallbackPath is the request path the IdP redirects back to.
func (f *Flow) CallbackPath() string { return f.callbackPath }

// Start begins a login and returns the IdP URL. returnTo is remembered so the
// callback can send the user back where they started.
func (f *Flow) Start(ctx context.Context, returnTo string) (string, error) {
	authURL, state, nonce, err := f.provider.Begin(ctx, ports.BeginInput{RedirectURL: f.callbackURL})
	if err != nil {
		return "", fmt.Errorf("begin login: %w", err)
	}
	payload, err := json.Marshal(flowState{Nonce: nonce, ReturnTo: SafeReturnTo(returnTo)})
	if err != nil {
		return "", fmt.Errorf("encode login state: %w", err)
	}
	if err := f.store.Set(ctx, stateKey(state), payload, f.ttl); err != nil {
		return "", fmt.Errorf("store login state: %w", err)
	}
	return authURL, nil
}

// Complete consumes state and exchanges code for an identity. The return-to path
// is parked under the same state so the callback handler can collect it with
// TakeReturnTo once the session holds the identity.
func (f *Flow) Complete(ctx context.Context, code, state string) (domainauth.Identity, error) {
	if state == "" {
		return domainauth.Identity{}, ErrInvalidState
	}
	raw, err := f.store.Get(ctx, stateKey(state))
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("load login state: %w", err)
	}
	if raw == nil {
		return domainauth.Identity{}, ErrInvalidState
	}
	// Delete before exchanging so a replayed callback cannot reuse the state.
	deleted, err := f.store.Delete(ctx, stateKey(state))
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("delete login state: %w", err)
	}
	if !deleted {
		return domainauth.Identity{}, ErrInvalidState
	}

	var fs flowState
	if err := json.Unmarshal(raw, &fs); err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	id, err := f.provider.Exchange(ctx, ports.ExchangeInput{Code: code, State: state, Nonce: fs.Nonce})
	if err != nil {
		return domainauth.Identity{}, err
	}

	if err := f.store.Set(ctx, returnKey(state), []byte(fs.ReturnTo), f.ttl); err != nil {
		return domainauth.Identity{}, fmt.Errorf("store return path: %w", err)
	}
	return id, nil
}

// TakeReturnTo returns and forgets the path parked by Complete, or "/" when none is left.
func (f *Flow) TakeReturnTo(ctx context.Context, state string) string {
	if state == "" {
		return "/"
	}
	raw, err := f.store.Get(ctx, returnKey(state))
	if err != nil || raw == nil {
		return "/"
	}
	_, _ = f.store.Delete(ctx, returnKey(state))
	return SafeReturnTo(string(raw))
}

// SafeReturnTo keeps only same-origin absolute paths; anything else becomes "/".
func SafeReturnTo(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return p
}

func stateKey(state string) string  { return "state:" + state }
func returnKey(state string) string { return "return:" + state }
