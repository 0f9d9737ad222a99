package testutil

import (
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
)

// CredentialBuilder provides a fluent interface for building credentials in tests.
type CredentialBuilder struct {
	cred     domainauth.Credential
	password string
}

// NewCredential starts a builder for username with password "password".
func NewCredential(username string) *CredentialBuilder {
	return &CredentialBuilder{
		cred: domainauth.Credential{
			Username:  username,
			Email:     username + "@example.com",
			FirstName: "Test",
			LastName:  "User",
			Groups:    []string{"users"},
			CreatedAt: TestTime(),
		},
		password: "password",
	}
}

// WithPassword sets the plaintext password that Build hashes.
func (b *CredentialBuilder) WithPassword(pw string) *CredentialBuilder {
	b.password = pw
	return b
}

// WithGroups replaces the credential groups.
func (b *CredentialBuilder) WithGroups(groups ...string) *CredentialBuilder {
	b.cred.Groups = groups
	return b
}

// WithEmail sets the email.
func (b *CredentialBuilder) WithEmail(email string) *CredentialBuilder {
	b.cred.Email = email
	return b
}

// Build hashes the password at bcrypt.MinCost to keep tests fast.
func (b *CredentialBuilder) Build() domainauth.Credential {
	hash, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	c := b.cred
	c.PasswordHash = string(hash)
	return c
}
