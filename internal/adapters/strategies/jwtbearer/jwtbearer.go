// Package jwtbearer resolves callers presenting an HMAC-signed JWT as a bearer token.
// Claim locations are JMESPath expressions so tokens from different issuers can be
// mapped without code changes.
package jwtbearer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/bearer"
	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Name is the registry name of the strategy.
const Name = "jwt"

// Default claim expressions.
const (
	DefaultUserClaim   = "sub"
	DefaultEmailClaim  = "email"
	DefaultGroupsClaim = "groups"
)

// Config configures token validation and claim mapping.
type Config struct {
	Secret   []byte
	Issuer   string // optional; enforced when set
	Audience string // optional; enforced when set
	Leeway   time.Duration

	UserClaim      string
	EmailClaim     string
	GroupsClaim    string
	FirstNameClaim string
	LastNameClaim  string

	Logger *slog.Logger
}

// Strategy validates bearer JWTs.
type Strategy struct {
	secret []byte
	parser *jwt.Parser
	claims claimPaths
	logger *slog.Logger
}

// claimPaths holds the compiled claim expressions. Unset optional claims are nil.
type claimPaths struct {
	userExpr string

	user, email, groups, firstName, lastName jmespath.JMESPath
}

// New validates cfg and compiles the claim expressions once.
func New(cfg Config) (*Strategy, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt: secret is required")
	}

	paths := claimPaths{userExpr: orDefault(cfg.UserClaim, DefaultUserClaim)}
	for _, c := range []struct {
		expr string
		dst  *jmespath.JMESPath
	}{
		{paths.userExpr, &paths.user},
		{orDefault(cfg.EmailClaim, DefaultEmailClaim), &paths.email},
		{orDefault(cfg.GroupsClaim, DefaultGroupsClaim), &paths.groups},
		{strings.TrimSpace(cfg.FirstNameClaim), &paths.firstName},
		{strings.TrimSpace(cfg.LastNameClaim), &paths.lastName},
	} {
		if c.expr == "" {
			continue
		}
		compiled, err := jmespath.Compile(c.expr)
		if err != nil {
			return nil, fmt.Errorf("jwt: claim expression %q: %w", c.expr, err)
		}
		*c.dst = compiled
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Strategy{
		secret: append([]byte(nil), cfg.Secret...),
		parser: jwt.NewParser(opts...),
		claims: paths,
		logger: logger.With("strategy", Name),
	}, nil
}

// Definition returns the registry entry for s.
func (s *Strategy) Definition() ports.StrategyDefinition {
	return ports.StrategyDefinition{
		Name:      Name,
		Stateless: true,
		New: func(req ports.StrategyRequest) ports.Strategy {
			return ports.StrategyFunc(func(ctx context.Context) (domainauth.Outcome, error) {
				return s.run(ctx, req), nil
			})
		},
	}
}

// run never returns an error: a malformed, expired, or mis-signed token simply means
// this strategy cannot vouch for the caller.
func (s *Strategy) run(ctx context.Context, req ports.StrategyRequest) domainauth.Outcome {
	raw, ok := bearer.Token(req, "")
	if !ok || raw == "" || strings.Count(raw, ".") != 2 {
		return domainauth.Failure()
	}

	id, err := s.Verify(raw)
	if err != nil {
		s.logger.DebugContext(ctx, "bearer token rejected", "error", err)
		return domainauth.Failure()
	}
	return domainauth.Success(id)
}

// Verify parses raw and maps its claims to an Identity.
func (s *Strategy) Verify(raw string) (domainauth.Identity, error) {
	claims := jwt.MapClaims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, s.keyFunc); err != nil {
		return domainauth.Identity{}, err
	}

	data := map[string]any(claims)
	id := domainauth.Identity{
		UserID:    s.stringClaim(data, s.claims.user),
		Email:     s.stringClaim(data, s.claims.email),
		FirstName: s.stringClaim(data, s.claims.firstName),
		LastName:  s.stringClaim(data, s.claims.lastName),
		Groups:    s.listClaim(data, s.claims.groups),
	}
	if id.IsZero() {
		return domainauth.Identity{}, fmt.Errorf("claim %q is empty", s.claims.userExpr)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func (s *Strategy) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return s.secret, nil
}

func (s *Strategy) stringClaim(data map[string]any, expr jmespath.JMESPath) string {
	if expr == nil {
		return ""
	}
	v, err := expr.Search(data)
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return strings.TrimSpace(str)
}

// listClaim accepts either a list of strings or a single space- or comma-separated string.
func (s *Strategy) listClaim(data map[string]any, expr jmespath.JMESPath) []string {
	if expr == nil {
		return nil
	}
	v, err := expr.Search(data)
	if err != nil || v == nil {
		return nil
	}
	var out []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
	case []string:
		for _, str := range val {
			if strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
	case string:
		out = strings.FieldsFunc(val, func(r rune) bool { return r == ' ' || r == ',' })
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
