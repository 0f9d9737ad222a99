package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// ErrUnauthenticated is returned by the guard when the chain resolved no identity and
// issued no redirect. Error boundaries translate it into 401 or a login redirect.
var ErrUnauthenticated = errors.New("authentication required")

// UnauthenticatedError carries the strategies that were attempted. It matches
// ErrUnauthenticated with errors.Is.
type UnauthenticatedError struct {
	Attempted []string
}

func (e *UnauthenticatedError) Error() string {
	if len(e.Attempted) == 0 {
		return ErrUnauthenticated.Error()
	}
	return fmt.Sprintf("%s (tried %v)", ErrUnauthenticated.Error(), e.Attempted)
}

func (e *UnauthenticatedError) Is(target error) bool { return target == ErrUnauthenticated }

// Authenticator is the subset of AuthenticationManager used by the guard.
type Authenticator interface {
	Authenticate(ctx context.Context, in AuthenticateInput) (domainauth.Outcome, error)
}

// GuardOptions groups dependencies for Guard.
type GuardOptions struct {
	Manager Authenticator
	Logger  *slog.Logger
}

// Guard is the before-handler hook that blocks processing unless a user is resolved.
type Guard struct {
	manager Authenticator
	logger  *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(opts GuardOptions) (*Guard, error) {
	if opts.Manager == nil {
		return nil, errors.New("authentication manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{manager: opts.Manager, logger: logger.With("component", "auth_guard")}, nil
}

// GuardInput groups the per-request collaborators the guard talks to.
type GuardInput struct {
	HTTP      *http.Request
	Session   ports.SessionState
	Responder ports.Responder
}

// EnsureAuthenticated returns the caller's identity, running the chain only when the
// session has nothing cached.
//
// It returns a Success outcome when an identity is resolved, and a Redirect outcome
// with a nil error after handing the directive to the responder. When neither happens
// it returns an *UnauthenticatedError. Fatal strategy errors are returned unchanged.
func (g *Guard) EnsureAuthenticated(
	ctx context.Context,
	in GuardInput,
	override ...ports.StrategyDefinition,
) (domainauth.Outcome, error) {
	if in.Session == nil {
		return domainauth.Failure(), errors.New("session state is required")
	}

	cached, err := in.Session.User(ctx)
	if err != nil {
		return domainauth.Failure(), fmt.Errorf("read session user: %w", err)
	}
	if cached != nil && !cached.IsZero() {
		return domainauth.Success(*cached), nil
	}

	var overrideList []ports.StrategyDefinition
	if len(override) > 0 {
		overrideList = override
	}

	var attempted []string
	outcome, err := g.manager.Authenticate(ctx, AuthenticateInput{
		HTTP:      in.HTTP,
		Session:   in.Session,
		Override:  overrideList,
		OnAttempt: func(name string) { attempted = append(attempted, name) },
	})
	if err != nil {
		return domainauth.Failure(), err
	}

	switch outcome.Kind() {
	case domainauth.OutcomeRedirect:
		d, _ := outcome.Redirect()
		if in.Responder == nil {
			return domainauth.Failure(), errors.New("strategy redirected but no responder is available")
		}
		in.Responder.Redirect(d.Location, d.Status, d.Permanent)
		return outcome, nil
	case domainauth.OutcomeSuccess:
		return outcome, nil
	default:
		g.logger.DebugContext(ctx, "no strategy resolved an identity", "attempted", attempted)
		return domainauth.Failure(), &UnauthenticatedError{Attempted: attempted}
	}
}
