// Package authroles maps identity-provider groups to application roles.
package authroles

import (
	"strings"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

var _ ports.RoleMapper = StaticRoleMapper{}

// StaticRoleMapper assigns admin, then user, by exact group membership. Directory
// groups are compared case-insensitively since AD returns DNs with mixed case.
// Everyone else is a guest.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	switch {
	case m.AdminGroup != "" && contains(groups, m.AdminGroup):
		return domainauth.RoleAdmin
	case m.UserGroup != "" && contains(groups, m.UserGroup):
		return domainauth.RoleUser
	default:
		return domainauth.RoleGuest
	}
}

func contains(groups []string, want string) bool {
	for _, g := range groups {
		if strings.EqualFold(strings.TrimSpace(g), want) {
			return true
		}
	}
	return false
}
