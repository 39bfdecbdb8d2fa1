package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleMember = "member"
	RoleWorker = "worker" // café staff on the duty schedule
	RoleBoard  = "board"
	RoleAdmin  = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleMember, RoleWorker, RoleBoard, RoleAdmin:
		return true
	}
	return false
}
