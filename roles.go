package authstate

// Role is the closed set of authorization roles the dashboard knows about.
type Role string

const (
	// RoleAdmin can manage users and every asset.
	RoleAdmin Role = "admin"
	// RoleTechnician can view and update the assets assigned to them.
	RoleTechnician Role = "technician"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTechnician:
		return true
	default:
		return false
	}
}

// Allows reports whether a principal holding r satisfies the required role.
// An empty requirement is satisfied by any authenticated principal.
func (r Role) Allows(required Role) bool {
	if required == "" {
		return true
	}
	return r == required
}

// AllRoles returns the predefined roles.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleTechnician}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
