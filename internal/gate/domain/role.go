package domain

import "strings"

// Role is the closed set of account roles known to the gate.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"

	RoleCSHead      Role = "CS_HEAD"
	RoleOpsHead     Role = "OPS_HEAD"
	RoleFinanceHead Role = "FINANCE_HEAD"

	RoleCSSeniorAgent      Role = "CS_SENIOR_AGENT"
	RoleOpsSeniorAgent     Role = "OPS_SENIOR_AGENT"
	RoleFinanceSeniorAgent Role = "FINANCE_SENIOR_AGENT"

	RoleCSAgent      Role = "CS_AGENT"
	RoleOpsAgent     Role = "OPS_AGENT"
	RoleFinanceAgent Role = "FINANCE_AGENT"

	RoleOrganizer   Role = "ORGANIZER"
	RoleAdmin       Role = "ADMIN"
	RoleParticipant Role = "PARTICIPANT"
)

// Department groups staff roles. The zero value means no department.
type Department string

const (
	DepartmentNone            Department = ""
	DepartmentCustomerService Department = "CUSTOMER_SERVICE"
	DepartmentOperations      Department = "OPERATIONS"
	DepartmentFinance         Department = "FINANCE"
)

// Tier is a rung on the staff ladder. Higher is more privileged.
type Tier int

const (
	TierNone Tier = iota
	TierAgent
	TierSeniorAgent
	TierHead
	TierSuperAdmin
)

func (t Tier) String() string {
	switch t {
	case TierAgent:
		return "agent"
	case TierSeniorAgent:
		return "senior_agent"
	case TierHead:
		return "head"
	case TierSuperAdmin:
		return "super_admin"
	default:
		return "none"
	}
}

type roleInfo struct {
	tier       Tier
	department Department
}

// roleTable must list every Role constant; role_test.go enforces it.
var roleTable = map[Role]roleInfo{
	RoleSuperAdmin: {tier: TierSuperAdmin},

	RoleCSHead:      {tier: TierHead, department: DepartmentCustomerService},
	RoleOpsHead:     {tier: TierHead, department: DepartmentOperations},
	RoleFinanceHead: {tier: TierHead, department: DepartmentFinance},

	RoleCSSeniorAgent:      {tier: TierSeniorAgent, department: DepartmentCustomerService},
	RoleOpsSeniorAgent:     {tier: TierSeniorAgent, department: DepartmentOperations},
	RoleFinanceSeniorAgent: {tier: TierSeniorAgent, department: DepartmentFinance},

	RoleCSAgent:      {tier: TierAgent, department: DepartmentCustomerService},
	RoleOpsAgent:     {tier: TierAgent, department: DepartmentOperations},
	RoleFinanceAgent: {tier: TierAgent, department: DepartmentFinance},

	RoleOrganizer:   {tier: TierNone},
	RoleAdmin:       {tier: TierNone},
	RoleParticipant: {tier: TierNone},
}

// AllRoles returns every known role in ladder order.
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleCSHead, RoleOpsHead, RoleFinanceHead,
		RoleCSSeniorAgent, RoleOpsSeniorAgent, RoleFinanceSeniorAgent,
		RoleCSAgent, RoleOpsAgent, RoleFinanceAgent,
		RoleOrganizer, RoleAdmin, RoleParticipant,
	}
}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := roleTable[r]
	return r, ok
}

// Valid reports whether r is part of the enumeration.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// Tier returns the staff tier of r. Unknown roles are TierNone.
func (r Role) Tier() Tier {
	return roleTable[r].tier
}

// Department returns the department a staff role belongs to.
func (r Role) Department() Department {
	return roleTable[r].department
}

// IsStaff reports whether r sits anywhere on the staff ladder.
func (r Role) IsStaff() bool {
	return r.Tier() > TierNone
}

// IsOrganizerTier reports whether r may act as an organizer.
func (r Role) IsOrganizerTier() bool {
	switch r {
	case RoleOrganizer, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseDepartment normalises s into a known department.
func ParseDepartment(s string) (Department, bool) {
	d := Department(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case DepartmentCustomerService, DepartmentOperations, DepartmentFinance:
		return d, true
	}
	return DepartmentNone, false
}
