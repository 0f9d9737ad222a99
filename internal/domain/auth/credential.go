package auth

import "time"

// Credential is a stored username/password pair plus the profile used to build an Identity.
// PasswordHash is a bcrypt hash; plaintext passwords are never stored.
type Credential struct {
	Username     string
	PasswordHash string
	Email        string
	FirstName    string
	LastName     string
	Groups       []string
	CreatedAt    time.Time
	DisabledAt   *time.Time
}

// Disabled reports whether the credential has been revoked.
func (c Credential) Disabled() bool { return c.DisabledAt != nil }

// Identity converts the credential into the identity handed to the chain.
func (c Credential) Identity() Identity {
	return Identity{
		UserID:    c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Groups:    append([]string(nil), c.Groups...),
	}
}
