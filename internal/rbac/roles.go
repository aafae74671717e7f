package rbac

import "callflex/internal/tenants"

// Role sets used by routes. Keep these stable; they are part of the API contract.
var (
	AnyMember = []tenants.Role{tenants.RoleOwner, tenants.RoleAdmin, tenants.RoleMember}
	Managers  = []tenants.Role{tenants.RoleOwner, tenants.RoleAdmin}
	OwnerOnly = []tenants.Role{tenants.RoleOwner}
)

func allowed(role tenants.Role, set []tenants.Role) bool {
	for _, r := range set {
		if r == role {
			return true
		}
	}
	return false
}
