package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// AuthMode selects the identity provider behind the oidc strategy.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC discovery against a real IdP.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock completes the login flow in-process (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// StrategyName names a strategy that can be placed in the chain.
type StrategyName string

const (
	StrategyBearer   StrategyName = "bearer"
	StrategyAPIKey   StrategyName = "api_key"
	StrategyJWT      StrategyName = "jwt"
	StrategyPassword StrategyName = "password"
	StrategyOIDC     StrategyName = "oidc"
	StrategyDev      StrategyName = "dev"
)

var knownStrategies = []StrategyName{
	StrategyBearer, StrategyAPIKey, StrategyJWT, StrategyPassword, StrategyOIDC, StrategyDev,
}

// UnmarshalText implements encoding.TextUnmarshaler for StrategyName.
func (s *StrategyName) UnmarshalText(text []byte) error {
	v := StrategyName(strings.ToLower(strings.TrimSpace(string(text))))
	if !slices.Contains(knownStrategies, v) {
		return fmt.Errorf("invalid strategy: %q (valid options: %s)", v, joinNames(knownStrategies))
	}
	*s = v
	return nil
}

// APIKey maps one static key to the identity it authenticates.
type APIKey struct {
	Key    string
	UserID string
	Groups []string
}

// APIKeys parses "key:user_id[:group|group]" entries separated by commas.
type APIKeys []APIKey

// UnmarshalText implements encoding.TextUnmarshaler for APIKeys.
func (k *APIKeys) UnmarshalText(text []byte) error {
	var out APIKeys
	for _, raw := range strings.Split(string(text), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return errors.New("invalid API key entry: expected key:user_id[:groups]")
		}
		entry := APIKey{Key: strings.TrimSpace(parts[0]), UserID: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			entry.Groups = splitList(parts[2], "|")
		}
		out = append(out, entry)
	}
	*k = out
	return nil
}

// RouteOverrides parses "prefix=name|name" entries separated by semicolons.
type RouteOverrides map[string][]StrategyName

// UnmarshalText implements encoding.TextUnmarshaler for RouteOverrides.
func (r *RouteOverrides) UnmarshalText(text []byte) error {
	out := RouteOverrides{}
	for _, raw := range strings.Split(string(text), ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, list, ok := strings.Cut(raw, "=")
		prefix = strings.TrimSpace(prefix)
		if !ok || !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("invalid route override %q: expected /prefix=strategy|strategy", raw)
		}
		names := []StrategyName{}
		for _, n := range splitList(list, "|") {
			var name StrategyName
			if err := name.UnmarshalText([]byte(n)); err != nil {
				return fmt.Errorf("route override %q: %w", prefix, err)
			}
			names = append(names, name)
		}
		out[prefix] = names
	}
	*r = out
	return nil
}

// Prefixes returns the configured prefixes in a stable order.
func (r RouteOverrides) Prefixes() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"gatekeeper"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	Prompt       string `env:"PROMPT"`
	// FlowTTL bounds how long a started login may take to come back.
	FlowTTL time.Duration `env:"FLOW_TTL" envDefault:"10m"`
}

// Scopes splits Scope on whitespace.
func (o OAuthConfig) Scopes() []string {
	return strings.Fields(o.Scope)
}

// DevAuthConfig controls the fixed development identity.
// Used by AUTH_MODE=mock and by the dev strategy.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"dev-user"`
	Email  string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Groups []string `env:"GROUPS"  envDefault:"admins"          envSeparator:";"`
}

// JWTConfig configures the jwt strategy. Claim settings are JMESPath expressions.
type JWTConfig struct {
	Secret         string        `env:"SECRET"`
	Issuer         string        `env:"ISSUER"`
	Audience       string        `env:"AUDIENCE"`
	Leeway         time.Duration `env:"LEEWAY"          envDefault:"30s"`
	UserClaim      string        `env:"USER_CLAIM"      envDefault:"sub"`
	EmailClaim     string        `env:"EMAIL_CLAIM"     envDefault:"email"`
	GroupsClaim    string        `env:"GROUPS_CLAIM"    envDefault:"groups"`
	FirstNameClaim string        `env:"FIRST_NAME_CLAIM"`
	LastNameClaim  string        `env:"LAST_NAME_CLAIM"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Strategies is the global chain, evaluated in the order given.
	Strategies []StrategyName `env:"AUTH_STRATEGIES" envDefault:"bearer,api_key,jwt,oidc"`

	// SessionTTL caps how long a resolved identity stays cached.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"8h"`

	// LoginPath is where unauthenticated browsers are sent. Empty disables the redirect.
	LoginPath string `env:"AUTH_LOGIN_PATH" envDefault:"/auth/login"`

	// Mode determines which provider backs the oidc strategy.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	APIKeys        APIKeys        `env:"AUTH_API_KEYS"`
	RouteOverrides RouteOverrides `env:"AUTH_ROUTE_OVERRIDES"`

	JWT     JWTConfig     `envPrefix:"AUTH_JWT_"`
	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup is the LDAP/AD group DN for admin users.
	AdminGroup string `env:"ADMIN_GROUP,required"`

	// UserGroup is the LDAP/AD group DN for regular users.
	UserGroup string `env:"USER_GROUP,required"`
}

// Enabled reports whether name is part of the global chain.
func (a *AuthConfig) Enabled(name StrategyName) bool {
	return slices.Contains(a.Strategies, name)
}

// Sanitize trims values and fills defaults that env tags cannot express.
func (a *AuthConfig) Sanitize() {
	a.LoginPath = strings.TrimSpace(a.LoginPath)
	if a.SessionTTL <= 0 {
		a.SessionTTL = 8 * time.Hour
	}
	if a.OAuth.FlowTTL <= 0 {
		a.OAuth.FlowTTL = 10 * time.Minute
	}
	if a.JWT.Leeway < 0 {
		a.JWT.Leeway = 0
	}
	a.OAuth.DiscoveryURL = strings.TrimSpace(a.OAuth.DiscoveryURL)
}

// Validate checks the chain and the settings each configured strategy needs.
func (a *AuthConfig) Validate() error {
	var errs []error
	if len(a.Strategies) == 0 {
		errs = append(errs, errors.New("AUTH_STRATEGIES must name at least one strategy"))
	}
	seen := map[StrategyName]bool{}
	for _, s := range a.Strategies {
		if seen[s] {
			errs = append(errs, fmt.Errorf("AUTH_STRATEGIES lists %q twice", s))
		}
		seen[s] = true
	}

	if seen[StrategyAPIKey] && len(a.APIKeys) == 0 {
		errs = append(errs, errors.New("AUTH_API_KEYS is required when api_key is enabled"))
	}
	if seen[StrategyJWT] && a.JWT.Secret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required when jwt is enabled"))
	}
	if seen[StrategyOIDC] && a.Mode == AuthModeOAuth && a.OAuth.DiscoveryURL == "" {
		errs = append(errs, errors.New("OAUTH_DISCOVERY_URL is required when oidc is enabled"))
	}
	if a.LoginPath != "" && !strings.HasPrefix(a.LoginPath, "/") {
		errs = append(errs, fmt.Errorf("AUTH_LOGIN_PATH must be an absolute path, got %q", a.LoginPath))
	}

	for _, prefix := range a.RouteOverrides.Prefixes() {
		if len(a.RouteOverrides[prefix]) == 0 {
			errs = append(errs, fmt.Errorf("route override %q names no strategies", prefix))
		}
		for _, name := range a.RouteOverrides[prefix] {
			if !seen[name] {
				errs = append(errs, fmt.Errorf("route override %q uses %q, which is not in AUTH_STRATEGIES", prefix, name))
			}
		}
	}
	return errors.Join(errs...)
}

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinNames(names []StrategyName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
