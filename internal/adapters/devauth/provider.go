// Package devauth provides a fixed identity for local development. It can stand in
// for the IdP behind the oidc flow, or run directly as the "dev" strategy.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Name is the registry name of the dev strategy.
const Name = "dev"

// Config controls the dev identity. Groups may be empty.
type Config struct {
	UserID          string
	Email           string
	Groups          []string
	SessionDuration time.Duration // default 8h when zero
	// CallbackPath is where Begin sends the browser; defaults to /auth/callback.
	CallbackPath string
	Now          func() time.Time
}

// Provider implements ports.AuthProvider without leaving the process: Begin points
// straight back at our callback and Exchange ignores the code.
type Provider struct {
	identity     domainauth.Identity
	duration     time.Duration
	callbackPath string
	now          func() time.Time
}

// NewProvider validates cfg.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur <= 0 {
		dur = 8 * time.Hour
	}
	cb := cfg.CallbackPath
	if cb == "" {
		cb = "/auth/callback"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID: cfg.UserID,
			Email:  cfg.Email,
			Groups: append([]string(nil), cfg.Groups...),
		},
		duration:     dur,
		callbackPath: cb,
		now:          now,
	}, nil
}

// Begin returns a local callback URL with fresh state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return p.callbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the configured identity. State and nonce are checked by the flow.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	return p.Identity(), nil
}

// Identity returns a copy of the dev identity with a fresh expiry.
func (p *Provider) Identity() domainauth.Identity {
	id := p.identity
	id.Groups = append([]string(nil), p.identity.Groups...)
	id.ExpiresAt = p.now().Add(p.duration)
	return id
}

// Definition returns the "dev" strategy, which resolves every request to the dev identity.
func (p *Provider) Definition() ports.StrategyDefinition {
	return ports.StrategyDefinition{
		Name: Name,
		New: func(ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(context.Context) (domainauth.Outcome, error) {
				return domainauth.Success(p.Identity()), nil
			})
		},
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
