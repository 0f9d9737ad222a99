// Package password resolves callers by username and password checked against stored
// bcrypt hashes. Credentials come from HTTP Basic auth or, on POST, from the
// username and password form fields.
package password

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Name is the registry name of the strategy.
const Name = "password"

// Form field names read on POST requests.
const (
	UsernameField = "username"
	PasswordField = "password"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// Options configures the strategy.
type Options struct {
	Store  ports.CredentialStore
	Logger *slog.Logger
}

// Strategy checks credentials against a CredentialStore.
type Strategy struct {
	store     ports.CredentialStore
	logger    *slog.Logger
	dummyHash []byte
}

// New constructs the strategy.
func New(opts Options) (*Strategy, error) {
	if opts.Store == nil {
		return nil, errors.New("password: credential store is required")
	}
	// Compared against when the user is unknown so both paths cost one bcrypt run.
	dummy, err := bcrypt.GenerateFromPassword([]byte("gatekeeper-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("password: dummy hash: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{store: opts.Store, logger: logger.With("strategy", Name), dummyHash: dummy}, nil
}

// HashPassword returns a bcrypt hash of plain at the given cost (bcrypt.DefaultCost when zero).
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", errors.New("password is required")
	}
	if len(plain) > maxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", maxPasswordBytes)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Definition returns the registry entry for s.
func (s *Strategy) Definition() ports.StrategyDefinition {
	return ports.StrategyDefinition{
		Name:      Name,
		Stateless: true,
		New: func(req ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(ctx context.Context) (domainauth.Outcome, error) {
				return s.run(ctx, req)
			})
		},
	}
}

// run reports unknown users, disabled accounts, and wrong passwords as Failure. Store
// errors are returned, except context expiry which also counts as Failure.
func (s *Strategy) run(ctx context.Context, req ports.StrategyRequest) (domainauth.Outcome, error) {
	username, pass, ok := credentials(req)
	if !ok {
		return domainauth.Failure(), nil
	}

	cred, err := s.store.Lookup(ctx, username)
	switch {
	case err == nil:
	case errors.Is(err, domainauth.ErrCredentialNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(pass))
		s.logger.DebugContext(ctx, "unknown username")
		return domainauth.Failure(), nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "credential lookup timed out", "error", err)
		return domainauth.Failure(), nil
	default:
		return domainauth.Failure(), fmt.Errorf("lookup credential: %w", err)
	}

	if cred.Disabled() || cred.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(pass))
		s.logger.DebugContext(ctx, "credential disabled", "username", username)
		return domainauth.Failure(), nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(pass)); err != nil {
		s.logger.DebugContext(ctx, "password mismatch", "username", username)
		return domainauth.Failure(), nil
	}
	return domainauth.Success(cred.Identity()), nil
}

func credentials(req ports.StrategyRequest) (username, pass string, ok bool) {
	if req.HTTP == nil {
		return "", "", false
	}
	if u, p, found := req.HTTP.BasicAuth(); found {
		username, pass = u, p
	} else if req.HTTP.Method == http.MethodPost {
		username, pass = req.Param(UsernameField), req.Param(PasswordField)
	}
	username = strings.TrimSpace(username)
	if username == "" || pass == "" || len(pass) > maxPasswordBytes {
		return "", "", false
	}
	return username, pass, true
}
