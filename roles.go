package session

// Role is one of the fixed set of roles the token issuer emits.
type Role string

const (
	RolePrincipal  Role = "PRINCIPAL"
	RoleAdmin      Role = "ADMIN"
	RoleTeacher    Role = "TEACHER"
	RoleStudent    Role = "STUDENT"
	RoleParent     Role = "PARENT"
	RoleGuardian   Role = "GUARDIAN"
	RoleAccountant Role = "ACCOUNTANT"
	RoleLibrarian  Role = "LIBRARIAN"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RolePrincipal, RoleAdmin, RoleTeacher, RoleStudent,
		RoleParent, RoleGuardian, RoleAccountant, RoleLibrarian:
		return true
	default:
		return false
	}
}

// AllRoles returns all predefined roles
func AllRoles() []Role {
	return []Role{
		RolePrincipal,
		RoleAdmin,
		RoleTeacher,
		RoleStudent,
		RoleParent,
		RoleGuardian,
		RoleAccountant,
		RoleLibrarian,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// primaryRole applies the primary-role convention: the first entry of the
// ordered role sequence. The issuer owns the ordering contract; nothing is
// reordered client-side.
func primaryRole(roles []Role) (Role, bool) {
	if len(roles) == 0 {
		return "", false
	}
	return roles[0], true
}
