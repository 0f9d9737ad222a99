package oidc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Name is the registry name of the strategy.
const Name = "oidc"

// Strategy is the redirecting link of the chain. On the callback path it completes
// the login; elsewhere it sends interactive browsers to the IdP. Non-browser
// callers get Failure so API clients see 401 instead of a login page.
type Strategy struct {
	flow   *Flow
	logger *slog.Logger
}

// NewStrategy wraps flow.
func NewStrategy(flow *Flow, logger *slog.Logger) (*Strategy, error) {
	if flow == nil {
		return nil, errors.New("oidc flow is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{flow: flow, logger: logger.With("strategy", Name)}, nil
}

// Definition returns the registry entry for s.
func (s *Strategy) Definition() ports.StrategyDefinition {
	return ports.StrategyDefinition{
		Name: Name,
		New: func(req ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(ctx context.Context) (domainauth.Outcome, error) {
				return s.run(ctx, req)
			})
		},
	}
}

func (s *Strategy) run(ctx context.Context, req ports.StrategyRequest) (domainauth.Outcome, error) {
	if req.HTTP == nil {
		return domainauth.Failure(), nil
	}

	if req.HTTP.URL.Path == s.flow.CallbackPath() {
		return s.callback(ctx, req), nil
	}

	if !interactive(req.HTTP) {
		return domainauth.Failure(), nil
	}

	authURL, err := s.flow.Start(ctx, req.HTTP.URL.RequestURI())
	if err != nil {
		return domainauth.Failure(), err
	}
	return domainauth.RedirectTo(authURL), nil
}

// callback reports every problem as Failure: a bad or replayed state and an IdP
// rejection both leave the caller unauthenticated.
func (s *Strategy) callback(ctx context.Context, req ports.StrategyRequest) domainauth.Outcome {
	if idpErr := req.Param("error"); idpErr != "" {
		s.logger.WarnContext(ctx, "identity provider returned an error",
			"error", idpErr, "description", req.Param("error_description"))
		return domainauth.Failure()
	}
	code, state := req.Param("code"), req.Param("state")
	if code == "" || state == "" {
		return domainauth.Failure()
	}

	id, err := s.flow.Complete(ctx, code, state)
	if err != nil {
		s.logger.WarnContext(ctx, "login callback rejected", "error", err)
		return domainauth.Failure()
	}
	return domainauth.Success(id)
}

// interactive reports whether r looks like a top-level browser navigation.
func interactive(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if r.Header.Get("Authorization") != "" || r.Header.Get("X-Requested-With") != "" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
