package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/observability/metrics"
	"github.com/target/mmk-gatekeeper/internal/observability/statsd"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// AuthenticationManagerOptions groups dependencies for AuthenticationManager.
type AuthenticationManagerOptions struct {
	Registry *StrategyRegistry
	Roles    ports.RoleMapper // optional; assigns a role to identities that lack one
	Metrics  statsd.Sink      // optional
	Logger   *slog.Logger     // optional
}

// AuthenticationManager runs the strategy chain for one session at a time.
// It holds no per-request state, so a single instance serves all requests.
type AuthenticationManager struct {
	registry *StrategyRegistry
	roles    ports.RoleMapper
	metrics  statsd.Sink
	logger   *slog.Logger
}

// NewAuthenticationManager constructs an AuthenticationManager.
func NewAuthenticationManager(opts AuthenticationManagerOptions) (*AuthenticationManager, error) {
	if opts.Registry == nil {
		return nil, errors.New("strategy registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthenticationManager{
		registry: opts.Registry,
		roles:    opts.Roles,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "auth_manager"),
	}, nil
}

// AuthenticateInput groups the per-request values for Authenticate.
type AuthenticateInput struct {
	HTTP    *http.Request
	Session ports.SessionState
	// Override, when non-nil, replaces the registry order for this call.
	Override []ports.StrategyDefinition
	// OnAttempt, when set, is called with each strategy name before it runs.
	OnAttempt func(name string)
}

// Authenticate runs the chain in order and stops at the first Success or Redirect.
//
// Abstract definitions are skipped without being instantiated. A Success is cached in
// the session; a Redirect is returned without caching anything. When every strategy
// fails the result is Failure: turning that into an error is the guard's job.
// Errors returned by a strategy abort the chain and are returned wrapped.
func (m *AuthenticationManager) Authenticate(ctx context.Context, in AuthenticateInput) (domainauth.Outcome, error) {
	if in.Session == nil {
		return domainauth.Failure(), errors.New("session state is required")
	}

	req := ports.StrategyRequest{HTTP: in.HTTP, Session: in.Session}

	for _, def := range m.registry.Ordered(in.Override) {
		if def.Abstract {
			continue
		}
		if in.OnAttempt != nil {
			in.OnAttempt(def.Name)
		}

		outcome, err := m.run(ctx, def, req)
		if err != nil {
			m.emitChain(metrics.ResultError)
			return domainauth.Failure(), err
		}

		switch outcome.Kind() {
		case domainauth.OutcomeRedirect:
			d, _ := outcome.Redirect()
			m.logger.DebugContext(ctx, "strategy redirected",
				"strategy", def.Name, "location", d.Location, "status", d.Status)
			m.emitChain(domainauth.OutcomeRedirect.String())
			return outcome, nil

		case domainauth.OutcomeSuccess:
			id, _ := outcome.Identity()
			id = m.decorate(def.Name, id)
			if setErr := cacheIdentity(ctx, in.Session, def, id); setErr != nil {
				m.emitChain(metrics.ResultError)
				return domainauth.Failure(), fmt.Errorf("cache identity: %w", setErr)
			}
			m.logger.DebugContext(ctx, "strategy resolved identity", "strategy", def.Name, "user_id", id.UserID)
			m.emitChain(domainauth.OutcomeSuccess.String())
			return domainauth.Success(id), nil

		default:
			m.logger.DebugContext(ctx, "strategy did not resolve identity", "strategy", def.Name)
		}
	}

	m.emitChain(domainauth.OutcomeFailure.String())
	return domainauth.Failure(), nil
}

func (m *AuthenticationManager) run(
	ctx context.Context,
	def ports.StrategyDefinition,
	req ports.StrategyRequest,
) (domainauth.Outcome, error) {
	start := time.Now()
	strategy := def.New(req)
	if strategy == nil {
		return domainauth.Failure(), fmt.Errorf("strategy %q: constructor returned nil", def.Name)
	}

	outcome, err := strategy.Run(ctx)
	run := metrics.StrategyRun{
		Strategy: def.Name,
		Result:   outcome.Kind().String(),
		Duration: time.Since(start),
	}
	if err != nil {
		run.Result = metrics.ResultError
		run.Err = err
		metrics.EmitStrategyRun(m.metrics, run)
		m.logger.ErrorContext(ctx, "strategy failed", "strategy", def.Name, "error", err)
		return domainauth.Failure(), fmt.Errorf("strategy %q: %w", def.Name, err)
	}
	metrics.EmitStrategyRun(m.metrics, run)
	return outcome, nil
}

// cacheIdentity stores id in the session. Identities from stateless strategies stay
// request-scoped when the session supports it.
func cacheIdentity(
	ctx context.Context,
	sess ports.SessionState,
	def ports.StrategyDefinition,
	id domainauth.Identity,
) error {
	if def.Stateless {
		if scoped, ok := sess.(ports.RequestScopedState); ok {
			return scoped.SetRequestUser(ctx, id)
		}
	}
	return sess.SetUser(ctx, id)
}

// decorate records which strategy won and fills in a role when a mapper is configured.
func (m *AuthenticationManager) decorate(strategy string, id domainauth.Identity) domainauth.Identity {
	if id.Strategy == "" {
		id.Strategy = strategy
	}
	if id.Role == "" && m.roles != nil {
		id.Role = m.roles.Map(id.Groups)
	}
	return id
}

func (m *AuthenticationManager) emitChain(result string) {
	metrics.EmitChainResult(m.metrics, result)
}
