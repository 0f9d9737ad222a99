// Package bearer holds the abstract "bearer" strategy: a registry template that is
// never run, plus the token extraction shared by strategies that accept bearer
// credentials.
package bearer

import (
	"strings"

	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Name is the registry name of the abstract bearer template.
const Name = "bearer"

// Definition returns the abstract template entry. The chain skips it.
func Definition() ports.StrategyDefinition {
	return ports.StrategyDefinition{Name: Name, Abstract: true}
}

// Token returns the credential from "Authorization: Bearer <token>", falling back to
// the alternate header when one is given (e.g. X-API-Key). ok is false when the
// request carries no bearer credential at all; an empty token with ok true means the
// scheme was present but the value was blank.
func Token(req ports.StrategyRequest, altHeader string) (token string, ok bool) {
	if h := req.Header("Authorization"); h != "" {
		scheme, value, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), true
		}
	}
	if altHeader != "" {
		if v := req.Header(altHeader); v != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
