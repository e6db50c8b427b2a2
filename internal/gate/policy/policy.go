// Package policy decides whether an authenticated user satisfies a route
// requirement. Every function here is pure: no I/O, no clock, no globals.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
)

// Requirement is a named predicate over a user. A nil error allows.
type Requirement struct {
	Name  string
	check func(u *domain.User) error
}

// IsZero reports whether r is the unset Requirement.
func (r Requirement) IsZero() bool { return r.Name == "" && r.check == nil }

// Decide applies req to u. A nil user is always an invalid credential.
func Decide(u *domain.User, req Requirement) error {
	if u == nil {
		return fmt.Errorf("%w: no user for %s", domain.ErrInvalidCredential, req.Name)
	}
	if req.check == nil {
		return nil
	}
	return req.check(u)
}

// Allow is the empty requirement; it still demands an authenticated user.
func Allow() Requirement {
	return Requirement{Name: "authenticated"}
}

func deny(u *domain.User, name string) error {
	return fmt.Errorf("%w: %s (role=%s) fails %s", domain.ErrInsufficientPrivilege, u.ID, u.Role, name)
}

// RequireRole allows any of roles. SUPER_ADMIN is always allowed.
func RequireRole(roles ...domain.Role) Requirement {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	name := "role(" + strings.Join(names, "|") + ")"

	return Requirement{Name: name, check: func(u *domain.User) error {
		if u.Role == domain.RoleSuperAdmin {
			return nil
		}
		for _, r := range roles {
			if u.Role == r {
				return nil
			}
		}
		return deny(u, name)
	}}
}

// RequireDepartment allows staff whose role belongs to dept.
func RequireDepartment(dept domain.Department) Requirement {
	name := "department(" + string(dept) + ")"
	return Requirement{Name: name, check: func(u *domain.User) error {
		if u.Role == domain.RoleSuperAdmin {
			return nil
		}
		if dept != domain.DepartmentNone && u.Role.IsStaff() && u.Role.Department() == dept {
			return nil
		}
		return deny(u, name)
	}}
}

// RequireDepartmentHead allows heads of any department.
func RequireDepartmentHead() Requirement {
	const name = "department_head"
	return Requirement{Name: name, check: func(u *domain.User) error {
		if u.Role.Tier() >= domain.TierHead {
			return nil
		}
		return deny(u, name)
	}}
}

// RequireHierarchical allows anyone on the staff ladder. Finer ownership
// checks are left to the handler, see CanManageUser.
func RequireHierarchical() Requirement {
	const name = "hierarchical"
	return Requirement{Name: name, check: func(u *domain.User) error {
		if u.Role.IsStaff() {
			return nil
		}
		return deny(u, name)
	}}
}

// RequireOrganizer allows organizer-tier roles unless the user is browsing
// in participant mode, which wins over every role.
func RequireOrganizer() Requirement {
	return Requirement{Name: "organizer", check: checkOrganizer}
}

func checkOrganizer(u *domain.User) error {
	if u.InParticipantMode() {
		return fmt.Errorf("%w: %s is in participant mode", domain.ErrInsufficientPrivilege, u.ID)
	}
	if !u.Role.IsOrganizerTier() {
		return deny(u, "organizer")
	}
	return nil
}

// RequireVerifiedOrganizer additionally refuses ORGANIZER accounts that
// have not been approved. That refusal is ErrNotYetVerified, which the HTTP
// layer reports as-is instead of hiding.
func RequireVerifiedOrganizer() Requirement {
	return Requirement{Name: "verified_organizer", check: func(u *domain.User) error {
		if err := checkOrganizer(u); err != nil {
			return err
		}
		if u.Role == domain.RoleOrganizer && u.VerificationStatus != domain.VerificationApproved {
			return fmt.Errorf("%w: %s status=%s", domain.ErrNotYetVerified, u.ID, u.VerificationStatus)
		}
		return nil
	}}
}

func RequireSuperAdmin() Requirement {
	const name = "super_admin"
	return Requirement{Name: name, check: func(u *domain.User) error {
		if u.Role == domain.RoleSuperAdmin {
			return nil
		}
		return deny(u, name)
	}}
}

// AllOf allows only when every requirement allows. The first denial wins.
func AllOf(reqs ...Requirement) Requirement {
	return Requirement{Name: joinNames("all", reqs), check: func(u *domain.User) error {
		for _, r := range reqs {
			if err := Decide(u, r); err != nil {
				return err
			}
		}
		return nil
	}}
}

// AnyOf allows when at least one requirement allows. With no requirements
// it denies. When every branch denies, an ErrNotYetVerified from any branch
// is preferred so the caller still gets the actionable answer.
func AnyOf(reqs ...Requirement) Requirement {
	name := joinNames("any", reqs)
	return Requirement{Name: name, check: func(u *domain.User) error {
		var firstErr error
		for _, r := range reqs {
			err := Decide(u, r)
			if err == nil {
				return nil
			}
			if errors.Is(err, domain.ErrNotYetVerified) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		if firstErr == nil {
			return deny(u, name)
		}
		return firstErr
	}}
}

func joinNames(op string, reqs []Requirement) string {
	names := make([]string, len(reqs))
	for i, r := range reqs {
		names[i] = r.Name
	}
	return op + "(" + strings.Join(names, ",") + ")"
}
