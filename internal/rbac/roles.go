package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleManager    = "manager"
	RoleWaiter     = "waiter"
	RoleSuperAdmin = "super_admin"
)

// StaffRoles are the roles that may handle calls on the floor.
var StaffRoles = []string{RoleOwner, RoleManager, RoleWaiter}

// AdminRoles may silence tables, cancel calls and read reports.
var AdminRoles = []string{RoleOwner, RoleManager}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
