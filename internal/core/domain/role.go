package domain

import "strings"

// Role is a role a user can hold in the platform.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleSupport        Role = "suporte"
	RoleSupportManager Role = "suporte_gerente"
	// RoleOther stands in for every role irrelevant to support tooling.
	RoleOther Role = "other"
)

// ParseRole maps a stored role name onto the closed set of roles this service knows.
func ParseRole(raw string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleSupport, RoleSupportManager:
		return r
	default:
		return RoleOther
	}
}

// GrantsSupportAccess reports whether the role may operate support tooling.
func (r Role) GrantsSupportAccess() bool {
	switch r {
	case RoleAdmin, RoleSupport, RoleSupportManager:
		return true
	default:
		return false
	}
}

// HasSupportAccess reports whether any of roles grants support access.
func HasSupportAccess(roles []Role) bool {
	for _, r := range roles {
		if r.GrantsSupportAccess() {
			return true
		}
	}
	return false
}
