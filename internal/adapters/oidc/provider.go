// Package oidc authenticates browser users against an OpenID Connect identity
// provider. Provider wraps the discovery, code exchange and token verification;
// Flow keeps state between the redirect and the callback; Strategy plugs both into
// the authentication chain.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Provider implements ports.AuthProvider using go-oidc and oauth2.
type Provider struct {
	config   *oauth2.Config
	prompt   string
	client   *http.Client
	op       *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string // defaults to openid profile email
	// IssuerURL is the issuer or its discovery document URL.
	IssuerURL  string
	Prompt     string       // optional prompt parameter, e.g. select_account
	HTTPClient *http.Client // defaults to a client with a 30s timeout
}

// DiscoveryDocument is the subset of the discovery document the provider needs.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider performs discovery and returns a ready Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	switch {
	case cfg.ClientID == "":
		return nil, errors.New("client ID is required")
	case cfg.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case cfg.RedirectURL == "":
		return nil, errors.New("redirect URL is required")
	case cfg.IssuerURL == "":
		return nil, errors.New("issuer URL is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	op, err := gooidc.NewProvider(oauth2Context(ctx, client), issuerFrom(cfg.IssuerURL))
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		prompt:   cfg.Prompt,
		client:   client,
		op:       op,
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// RedirectURL returns the configured callback URL.
func (p *Provider) RedirectURL() string { return p.config.RedirectURL }

// Begin returns the IdP authorization URL with a fresh state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	opts := []oauth2.AuthCodeOption{gooidc.Nonce(nonce)}
	if p.prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", p.prompt))
	}
	return p.config.AuthCodeURL(state, opts...), state, nonce, nil
}

// Exchange trades the code for tokens, verifies the ID token and nonce, and maps
// the claims to an Identity. Missing profile fields are filled from UserInfo.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = oauth2Context(ctx, p.client)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	var c claims
	if slices.Contains(p.config.Scopes, gooidc.ScopeOpenID) {
		if c, err = p.verifyIDToken(ctx, token, in.Nonce); err != nil {
			return domainauth.Identity{}, err
		}
	}
	id := c.identity()

	if id.UserID == "" || id.Email == "" {
		ui, uiErr := p.op.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("fetch user info: %w", uiErr)
		}
		var extra claims
		if decodeErr := ui.Claims(&extra); decodeErr != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", decodeErr)
		}
		id = fillMissing(id, extra.identity())
	}
	if id.IsZero() {
		return domainauth.Identity{}, errors.New("identity provider returned no subject")
	}

	id.ExpiresAt = time.Now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		id.ExpiresAt = token.Expiry
	}
	return id, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, tok *oauth2.Token, nonce string) (claims, error) {
	raw, err := idTokenFrom(tok)
	if err != nil {
		return claims{}, err
	}
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return claims{}, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != nonce {
		return claims{}, errors.New("invalid nonce")
	}
	var c claims
	if err := idTok.Claims(&c); err != nil {
		return claims{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	return c, nil
}

// claims is the union of standard OIDC claims and the AD/ADFS shape.
type claims struct {
	Sub               string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	SamAccountName    string   `json:"samaccountname"`
	Email             string   `json:"email"`
	Mail              string   `json:"mail"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	FirstName         string   `json:"firstname"`
	LastName          string   `json:"lastname"`
	Groups            []string `json:"groups"`
	MemberOf          []string `json:"memberof"`
}

// identity applies precedence: directory account names beat the opaque subject.
func (c claims) identity() domainauth.Identity {
	groups := c.Groups
	if len(groups) == 0 {
		groups = c.MemberOf
	}
	return domainauth.Identity{
		UserID:    firstNonEmpty(c.SamAccountName, c.PreferredUsername, c.Sub),
		Email:     firstNonEmpty(c.Email, c.Mail),
		FirstName: firstNonEmpty(c.GivenName, c.FirstName),
		LastName:  firstNonEmpty(c.FamilyName, c.LastName),
		Groups:    groups,
	}
}

func fillMissing(id, from domainauth.Identity) domainauth.Identity {
	id.UserID = firstNonEmpty(id.UserID, from.UserID)
	id.Email = firstNonEmpty(id.Email, from.Email)
	id.FirstName = firstNonEmpty(id.FirstName, from.FirstName)
	id.LastName = firstNonEmpty(id.LastName, from.LastName)
	if len(id.Groups) == 0 {
		id.Groups = from.Groups
	}
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func idTokenFrom(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

func issuerFrom(u string) string {
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/.well-known/openid-configuration")
	return u
}

func oauth2Context(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// randomString returns n URL-safe characters from crypto/rand.
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
