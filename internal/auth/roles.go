package auth

// Operator role constants.
const (
	RoleViewer     = "viewer"
	RoleOperator   = "operator"
	RoleSuperAdmin = "superadmin"
)

// AllOperatorRoles returns all valid operator roles.
func AllOperatorRoles() []string {
	return []string{RoleViewer, RoleOperator, RoleSuperAdmin}
}

// WriteRoles returns roles that can move money or change state.
func WriteRoles() []string {
	return []string{RoleOperator, RoleSuperAdmin}
}

func validRole(role string) bool {
	for _, r := range AllOperatorRoles() {
		if r == role {
			return true
		}
	}
	return false
}
