package policy

import "github.com/aussiebroadwan/eventgate/internal/gate/domain"

// CanManageUser reports whether a staff member may act on another account.
//
//   - SUPER_ADMIN manages anyone.
//   - A department head manages anyone in their own department.
//   - A senior agent manages only agents in their own department.
//
// Departments come from the explicit arguments; an empty one falls back to
// the department implied by the role.
func CanManageUser(managerRole domain.Role, managerDept domain.Department, targetRole domain.Role, targetDept domain.Department) bool {
	if managerRole == domain.RoleSuperAdmin {
		return true
	}

	managerDept = effectiveDepartment(managerRole, managerDept)
	targetDept = effectiveDepartment(targetRole, targetDept)
	if managerDept == domain.DepartmentNone || managerDept != targetDept {
		return false
	}

	switch managerRole.Tier() {
	case domain.TierHead:
		return true
	case domain.TierSeniorAgent:
		return targetRole.Tier() == domain.TierAgent
	default:
		return false
	}
}

func effectiveDepartment(r domain.Role, d domain.Department) domain.Department {
	if d != domain.DepartmentNone {
		return d
	}
	return r.Department()
}
