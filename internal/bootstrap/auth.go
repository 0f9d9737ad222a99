package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/target/mmk-gatekeeper/config"
	"github.com/target/mmk-gatekeeper/internal/adapters/authroles"
	"github.com/target/mmk-gatekeeper/internal/adapters/devauth"
	"github.com/target/mmk-gatekeeper/internal/adapters/oidc"
	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/apikey"
	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/bearer"
	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/jwtbearer"
	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/password"
	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	httpx "github.com/target/mmk-gatekeeper/internal/http"
	"github.com/target/mmk-gatekeeper/internal/observability/statsd"
	"github.com/target/mmk-gatekeeper/internal/ports"
	"github.com/target/mmk-gatekeeper/internal/service"
)

// AuthConfig contains configuration for the auth components.
type AuthConfig struct {
	Auth config.AuthConfig

	Sessions    ports.SessionStore
	FlowState   ports.FlowStateStore   // required when oidc is enabled
	Credentials ports.CredentialStore  // required when password is enabled
	Metrics     statsd.Sink            // optional
	Logger      *slog.Logger
}

// AuthComponents is the wired strategy chain and everything the router needs from it.
type AuthComponents struct {
	Registry *service.StrategyRegistry
	Sessions *service.SessionService
	Manager  *service.AuthenticationManager
	Guard    *service.Guard

	// Flow and CallbackOverride are nil unless oidc is in the chain.
	Flow             *oidc.Flow
	CallbackOverride []ports.StrategyDefinition
	RouteOverrides   httpx.RouteOverrides
}

// BuildAuth registers the configured strategies in AUTH_STRATEGIES order and seals
// the registry. Any strategy that cannot be built is a startup error.
func BuildAuth(ctx context.Context, cfg AuthConfig) (*AuthComponents, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	out := &AuthComponents{}
	defs := make([]ports.StrategyDefinition, 0, len(cfg.Auth.Strategies))
	for _, name := range cfg.Auth.Strategies {
		def, err := buildStrategy(ctx, name, cfg, out, logger)
		if err != nil {
			return nil, fmt.Errorf("build strategy %q: %w", name, err)
		}
		defs = append(defs, def)
	}

	registry, err := service.NewStrategyRegistry(defs...)
	if err != nil {
		return nil, err
	}
	registry.Seal()
	out.Registry = registry

	if out.Flow != nil {
		if out.CallbackOverride, err = registry.Lookup(oidc.Name); err != nil {
			return nil, err
		}
	}

	if out.RouteOverrides, err = resolveRouteOverrides(registry, cfg.Auth.RouteOverrides); err != nil {
		return nil, err
	}

	out.Sessions, err = service.NewSessionService(service.SessionServiceOptions{
		Store:   cfg.Sessions,
		TTL:     cfg.Auth.SessionTTL,
		Metrics: cfg.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	out.Manager, err = service.NewAuthenticationManager(service.AuthenticationManagerOptions{
		Registry: registry,
		Roles: authroles.StaticRoleMapper{
			AdminGroup: cfg.Auth.AdminGroup,
			UserGroup:  cfg.Auth.UserGroup,
		},
		Metrics: cfg.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	out.Guard, err = service.NewGuard(service.GuardOptions{Manager: out.Manager, Logger: logger})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "strategy chain configured", "strategies", registry.Names())
	return out, nil
}

func buildStrategy(
	ctx context.Context,
	name config.StrategyName,
	cfg AuthConfig,
	out *AuthComponents,
	logger *slog.Logger,
) (ports.StrategyDefinition, error) {
	switch name {
	case config.StrategyBearer:
		return bearer.Definition(), nil

	case config.StrategyAPIKey:
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, apikey.Key{
				Key:      k.Key,
				Identity: domainauth.Identity{UserID: k.UserID, Groups: k.Groups},
			})
		}
		s, err := apikey.New(keys)
		if err != nil {
			return ports.StrategyDefinition{}, err
		}
		return s.Definition(), nil

	case config.StrategyJWT:
		j := cfg.Auth.JWT
		s, err := jwtbearer.New(jwtbearer.Config{
			Secret:         []byte(j.Secret),
			Issuer:         j.Issuer,
			Audience:       j.Audience,
			Leeway:         j.Leeway,
			UserClaim:      j.UserClaim,
			EmailClaim:     j.EmailClaim,
			GroupsClaim:    j.GroupsClaim,
			FirstNameClaim: j.FirstNameClaim,
			LastNameClaim:  j.LastNameClaim,
			Logger:         logger,
		})
		if err != nil {
			return ports.StrategyDefinition{}, err
		}
		return s.Definition(), nil

	case config.StrategyPassword:
		s, err := password.New(password.Options{Store: cfg.Credentials, Logger: logger})
		if err != nil {
			return ports.StrategyDefinition{}, err
		}
		return s.Definition(), nil

	case config.StrategyOIDC:
		flow, err := buildFlow(ctx, cfg)
		if err != nil {
			return ports.StrategyDefinition{}, err
		}
		s, err := oidc.NewStrategy(flow, logger)
		if err != nil {
			return ports.StrategyDefinition{}, err
		}
		out.Flow = flow
		return s.Definition(), nil

	case config.StrategyDev:
		p, err := newDevProvider(cfg.Auth)
		if err != nil {
			return ports.StrategyDefinition{}, err
		}
		logger.WarnContext(ctx, "dev strategy enabled: every request resolves to the dev identity",
			"user_id", cfg.Auth.DevAuth.UserID)
		return p.Definition(), nil

	default:
		return ports.StrategyDefinition{}, fmt.Errorf("unsupported strategy %q", name)
	}
}

// buildFlow picks the provider behind the oidc strategy from AUTH_MODE.
func buildFlow(ctx context.Context, cfg AuthConfig) (*oidc.Flow, error) {
	oauth := cfg.Auth.OAuth

	var provider ports.AuthProvider
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		p, err := newDevProvider(cfg.Auth)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		p, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scopes:       oauth.Scopes(),
			IssuerURL:    oauth.DiscoveryURL,
			Prompt:       oauth.Prompt,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	}

	return oidc.NewFlow(oidc.FlowOptions{
		Provider:    provider,
		Store:       cfg.FlowState,
		CallbackURL: oauth.RedirectURL,
		TTL:         oauth.FlowTTL,
	})
}

func newDevProvider(auth config.AuthConfig) (*devauth.Provider, error) {
	callbackPath := ""
	if u, err := url.Parse(auth.OAuth.RedirectURL); err == nil {
		callbackPath = u.Path
	}
	return devauth.NewProvider(devauth.Config{
		UserID:          auth.DevAuth.UserID,
		Email:           auth.DevAuth.Email,
		Groups:          auth.DevAuth.Groups,
		SessionDuration: auth.SessionTTL,
		CallbackPath:    callbackPath,
	})
}

func resolveRouteOverrides(registry *service.StrategyRegistry, in config.RouteOverrides) (httpx.RouteOverrides, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(httpx.RouteOverrides, len(in))
	for _, prefix := range in.Prefixes() {
		names := make([]string, 0, len(in[prefix]))
		for _, n := range in[prefix] {
			names = append(names, string(n))
		}
		defs, err := registry.Lookup(names...)
		if err != nil {
			return nil, fmt.Errorf("route override %q: %w", prefix, err)
		}
		out[prefix] = defs
	}
	return out, nil
}
