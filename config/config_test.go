package config

import (
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredAuthEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_GROUP", "cn=admins,ou=groups,dc=example,dc=org")
	t.Setenv("USER_GROUP", "cn=users,ou=groups,dc=example,dc=org")
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	setRequiredAuthEnv(t)
	t.Setenv("AUTH_MODE", "OAuth")
	t.Setenv("AUTH_STRATEGIES", "bearer, jwt,oidc")
	t.Setenv("AUTH_SESSION_TTL", "2h")
	t.Setenv("AUTH_LOGIN_PATH", "/signin")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_JWT_GROUPS_CLAIM", "realm_access.roles")
	t.Setenv("OAUTH_CLIENT_ID", "app-client")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_REDIRECT_URL", "https://app.example.com/auth/callback")
	t.Setenv("OAUTH_DISCOVERY_URL", "https://login.example.com/.well-known/openid-configuration")
	t.Setenv("OAUTH_SCOPE", "openid profile email")
	t.Setenv("DEV_AUTH_GROUPS", "admins;devs")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := AuthConfig{
		Strategies: []StrategyName{StrategyBearer, StrategyJWT, StrategyOIDC},
		SessionTTL: 2 * time.Hour,
		LoginPath:  "/signin",
		Mode:       AuthModeOAuth,
		JWT: JWTConfig{
			Secret:      "s3cret",
			Leeway:      30 * time.Second,
			UserClaim:   "sub",
			EmailClaim:  "email",
			GroupsClaim: "realm_access.roles",
		},
		OAuth: OAuthConfig{
			ClientID:     "app-client",
			ClientSecret: "super-secret",
			RedirectURL:  "https://app.example.com/auth/callback",
			Scope:        "openid profile email",
			DiscoveryURL: "https://login.example.com/.well-known/openid-configuration",
			FlowTTL:      10 * time.Minute,
		},
		DevAuth: DevAuthConfig{
			UserID: "dev-user",
			Email:  "dev@example.com",
			Groups: []string{"admins", "devs"},
		},
		AdminGroup: "cn=admins,ou=groups,dc=example,dc=org",
		UserGroup:  "cn=users,ou=groups,dc=example,dc=org",
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
	if err := cfg.Auth.Validate(); err != nil {
		t.Fatalf("expected valid auth config, got %v", err)
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	setRequiredAuthEnv(t)

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []StrategyName{StrategyBearer, StrategyAPIKey, StrategyJWT, StrategyOIDC}, cfg.Auth.Strategies)
	assert.Equal(t, 8*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "/auth/login", cfg.Auth.LoginPath)
	assert.Equal(t, "session_id", cfg.HTTP.SessionCookie)
	assert.Equal(t, "gatekeeper:", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.NeedsPostgres())
	assert.False(t, cfg.HTTP.SecureCookies())
}

func TestAppConfig_ParseLogLevel(t *testing.T) {
	setRequiredAuthEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestAppConfig_MissingGroups(t *testing.T) {
	var cfg AppConfig
	err := env.Parse(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_GROUP")
}

func TestStrategyName_UnmarshalText(t *testing.T) {
	var s StrategyName
	require.NoError(t, s.UnmarshalText([]byte(" API_KEY ")))
	assert.Equal(t, StrategyAPIKey, s)

	err := s.UnmarshalText([]byte("kerberos"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid options")
}

func TestAppConfig_InvalidStrategyEnv(t *testing.T) {
	setRequiredAuthEnv(t)
	t.Setenv("AUTH_STRATEGIES", "bearer,saml")

	var cfg AppConfig
	require.Error(t, env.Parse(&cfg))
}

func TestAPIKeys_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    APIKeys
		wantErr bool
	}{
		{
			name:  "key with groups",
			input: "k1:svc-ci:admins|deployers",
			want:  APIKeys{{Key: "k1", UserID: "svc-ci", Groups: []string{"admins", "deployers"}}},
		},
		{
			name:  "several keys and blanks",
			input: " k1:alice , ,k2:bob:",
			want:  APIKeys{{Key: "k1", UserID: "alice"}, {Key: "k2", UserID: "bob"}},
		},
		{name: "missing user", input: "k1", wantErr: true},
		{name: "empty key", input: ":alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got APIKeys
			err := got.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.NotContains(t, err.Error(), tt.input, "key material must not leak into errors")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouteOverrides_UnmarshalText(t *testing.T) {
	var r RouteOverrides
	require.NoError(t, r.UnmarshalText([]byte("/api/=api_key|jwt; /admin/=password ;")))
	assert.Equal(t, RouteOverrides{
		"/api/":   {StrategyAPIKey, StrategyJWT},
		"/admin/": {StrategyPassword},
	}, r)
	assert.Equal(t, []string{"/admin/", "/api/"}, r.Prefixes())

	require.NoError(t, r.UnmarshalText([]byte("/open/=")))
	assert.Empty(t, r["/open/"])

	require.Error(t, r.UnmarshalText([]byte("api=jwt")))
	require.Error(t, r.UnmarshalText([]byte("/api/=jwt|ldap")))
}

func TestAuthConfig_Validate(t *testing.T) {
	base := func() AuthConfig {
		return AuthConfig{
			Strategies: []StrategyName{StrategyBearer, StrategyJWT},
			Mode:       AuthModeOAuth,
			LoginPath:  "/auth/login",
			JWT:        JWTConfig{Secret: "x"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AuthConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AuthConfig) {}},
		{
			name:    "empty chain",
			mutate:  func(a *AuthConfig) { a.Strategies = nil },
			wantErr: "at least one strategy",
		},
		{
			name:    "duplicate",
			mutate:  func(a *AuthConfig) { a.Strategies = append(a.Strategies, StrategyJWT) },
			wantErr: "twice",
		},
		{
			name:    "jwt without secret",
			mutate:  func(a *AuthConfig) { a.JWT.Secret = "" },
			wantErr: "AUTH_JWT_SECRET",
		},
		{
			name:    "api keys missing",
			mutate:  func(a *AuthConfig) { a.Strategies = append(a.Strategies, StrategyAPIKey) },
			wantErr: "AUTH_API_KEYS",
		},
		{
			name:    "oidc without discovery",
			mutate:  func(a *AuthConfig) { a.Strategies = append(a.Strategies, StrategyOIDC) },
			wantErr: "OAUTH_DISCOVERY_URL",
		},
		{
			name: "oidc in mock mode needs no discovery",
			mutate: func(a *AuthConfig) {
				a.Strategies = append(a.Strategies, StrategyOIDC)
				a.Mode = AuthModeMock
			},
		},
		{
			name:    "empty override",
			mutate:  func(a *AuthConfig) { a.RouteOverrides = RouteOverrides{"/open/": {}} },
			wantErr: "names no strategies",
		},
		{
			name:    "relative login path",
			mutate:  func(a *AuthConfig) { a.LoginPath = "login" },
			wantErr: "AUTH_LOGIN_PATH",
		},
		{
			name:    "override outside chain",
			mutate:  func(a *AuthConfig) { a.RouteOverrides = RouteOverrides{"/api/": {StrategyPassword}} },
			wantErr: "not in AUTH_STRATEGIES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAppConfig_ValidateDevOnlySettings(t *testing.T) {
	cfg := AppConfig{Auth: AuthConfig{
		Strategies: []StrategyName{StrategyDev, StrategyOIDC},
		Mode:       AuthModeMock,
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_MODE=mock")
	assert.Contains(t, err.Error(), `"dev"`)

	cfg.IsDev = true
	assert.NoError(t, cfg.Validate())
}

func TestHTTPConfig_SanitizeAndValidate(t *testing.T) {
	tests := []struct {
		domain  string
		want    string
		wantErr bool
	}{
		{domain: "", want: ""},
		{domain: "localhost", want: "localhost"},
		{domain: " .Example.COM ", want: "example.com"},
		{domain: "auth.example.co.uk", want: "auth.example.co.uk"},
		{domain: "co.uk", want: "co.uk", wantErr: true},
		{domain: "com", want: "com", wantErr: true},
		{domain: "10.0.0.1", want: "10.0.0.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			h := HTTPConfig{CookieDomain: tt.domain}
			h.Sanitize()
			assert.Equal(t, tt.want, h.CookieDomain)
			assert.Equal(t, "session_id", h.SessionCookie)

			err := h.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, strings.HasPrefix(err.Error(), "APP_COOKIE_DOMAIN"))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHTTPConfig_SecureCookies(t *testing.T) {
	h := HTTPConfig{BaseURL: "HTTPS://auth.example.com"}
	assert.True(t, h.SecureCookies())
}

func TestOAuthConfig_Scopes(t *testing.T) {
	o := OAuthConfig{Scope: " openid  profile\temail "}
	assert.Equal(t, []string{"openid", "profile", "email"}, o.Scopes())
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}
