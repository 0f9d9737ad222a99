// Package apikey resolves callers presenting a static API key, either as a bearer
// token or in the X-API-Key header.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"github.com/target/mmk-gatekeeper/internal/adapters/strategies/bearer"
	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

const (
	// Name is the registry name of the strategy.
	Name = "api_key"
	// Header is the alternate header checked after Authorization.
	Header = "X-API-Key"
)

// Key maps a plaintext key to the identity it authenticates.
type Key struct {
	Key      string
	Identity domainauth.Identity
}

type entry struct {
	hash     [32]byte
	identity domainauth.Identity
}

// Strategy holds hashed keys; plaintext keys are discarded at construction.
type Strategy struct {
	entries []entry
}

// New hashes keys. Every key needs a value and an identity with a user ID.
func New(keys []Key) (*Strategy, error) {
	s := &Strategy{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		if k.Key == "" {
			return nil, errors.New("api key: empty key")
		}
		if k.Identity.IsZero() {
			return nil, errors.New("api key: identity user ID is required")
		}
		s.entries = append(s.entries, entry{hash: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return s, nil
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

// run compares against every entry so the time taken does not depend on which key matched.
func (s *Strategy) run(_ context.Context, req ports.StrategyRequest) domainauth.Outcome {
	token, ok := bearer.Token(req, Header)
	if !ok || token == "" {
		return domainauth.Failure()
	}

	sum := sha256.Sum256([]byte(token))
	match := -1
	for i := range s.entries {
		if subtle.ConstantTimeCompare(sum[:], s.entries[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return domainauth.Failure()
	}

	id := s.entries[match].identity
	id.Groups = append([]string(nil), id.Groups...)
	return domainauth.Success(id)
}
