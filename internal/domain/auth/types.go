package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
// Valid values are defined as constants below.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Identity represents the authenticated principal resolved by a strategy.
// Strategies map scheme-specific credentials (claims, key entries, credential rows) into this shape.
type Identity struct {
	UserID    string    `json:"user_id"` // stable user identifier (e.g., sub or username)
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Strategy  string    `json:"strategy,omitempty"` // name of the strategy that resolved the identity
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsZero reports whether the identity carries no user. A zero identity is a negative result.
func (i Identity) IsZero() bool { return i.UserID == "" }

// Session is the server-side record we persist per browser or client session.
// User is nil until a strategy resolves an identity for the session.
// ID is an opaque session identifier (e.g., random URL-safe string).
type Session struct {
	ID        string    `json:"id"`
	User      *Identity `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session holds a resolved identity.
func (s Session) Authenticated() bool { return s.User != nil && !s.User.IsZero() }

// IsGuest returns true if the session has no identity or the identity maps to the guest role.
func (s Session) IsGuest() bool { return !s.Authenticated() || s.User.Role == RoleGuest }
