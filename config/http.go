package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally visible URL of the gatekeeper (e.g., "https://auth.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SessionCookie is the name of the cookie carrying the session id.
	SessionCookie string `env:"HTTP_SESSION_COOKIE" envDefault:"session_id"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")
	h.SessionCookie = strings.TrimSpace(h.SessionCookie)
	if h.SessionCookie == "" {
		h.SessionCookie = "session_id"
	}
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}

// SecureCookies reports whether the base URL is served over TLS.
func (h *HTTPConfig) SecureCookies() bool {
	return strings.HasPrefix(strings.ToLower(h.BaseURL), "https://")
}

// Validate rejects cookie domains that browsers would refuse or share too widely.
// A public suffix such as "co.uk" would hand the session to every site under it.
func (h *HTTPConfig) Validate() error {
	d := h.CookieDomain
	if d == "" || d == "localhost" {
		return nil
	}
	if net.ParseIP(d) != nil {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q: IP addresses cannot carry a cookie domain", d)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q: %w", d, err)
	}
	return nil
}
