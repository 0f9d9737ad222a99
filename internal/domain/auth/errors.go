package auth

import "errors"

var (
	// ErrSessionNotFound is returned by session stores for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCredentialNotFound is returned by credential stores when no row matches a username.
	ErrCredentialNotFound = errors.New("credential not found")
)
