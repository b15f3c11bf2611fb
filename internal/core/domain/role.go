package domain

import (
	"fmt"
	"strings"
)

// RoleName is the closed set of roles the service knows about.
type RoleName string

const (
	RoleAdmin      RoleName = "ADMIN"
	RoleSuperAdmin RoleName = "SUPER_ADMIN"
	RoleCounselor  RoleName = "COUNSELOR"
	RoleStudent    RoleName = "STUDENT"
	RoleClient     RoleName = "CLIENT"
)

var allRoles = []RoleName{RoleAdmin, RoleSuperAdmin, RoleCounselor, RoleStudent, RoleClient}

// AllRoles lists every role in declaration order.
func AllRoles() []RoleName {
	out := make([]RoleName, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRoleName accepts "counselor", "COUNSELOR" or "ROLE_COUNSELOR".
func ParseRoleName(s string) (RoleName, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	n = strings.TrimPrefix(n, "ROLE_")
	for _, r := range allRoles {
		if string(r) == n {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Permission is a resource:action authority granted through a role.
type Permission string

const (
	PermClientRead       Permission = "client:read"
	PermClientWrite      Permission = "client:write"
	PermCounselorRead    Permission = "counselor:read"
	PermCounselorWrite   Permission = "counselor:write"
	PermAssessmentRead   Permission = "assessment:read"
	PermAssessmentWrite  Permission = "assessment:write"
	PermAppointmentRead  Permission = "appointment:read"
	PermAppointmentWrite Permission = "appointment:write"
	PermUserAdmin        Permission = "user:admin"
)

var defaultPermissions = map[RoleName][]Permission{
	RoleSuperAdmin: {
		PermClientRead, PermClientWrite, PermCounselorRead, PermCounselorWrite,
		PermAssessmentRead, PermAssessmentWrite, PermAppointmentRead, PermAppointmentWrite,
		PermUserAdmin,
	},
	RoleAdmin: {
		PermClientRead, PermClientWrite, PermCounselorRead, PermCounselorWrite,
		PermAssessmentRead, PermAppointmentRead, PermAppointmentWrite, PermUserAdmin,
	},
	RoleCounselor: {
		PermClientRead, PermClientWrite, PermCounselorRead,
		PermAssessmentRead, PermAssessmentWrite, PermAppointmentRead, PermAppointmentWrite,
	},
	RoleStudent: {PermAssessmentRead, PermAppointmentRead, PermAppointmentWrite},
	RoleClient:  {PermAssessmentRead, PermAppointmentRead, PermAppointmentWrite},
}

// DefaultPermissions is the permission set a role is seeded with when it is
// first created in the catalog.
func DefaultPermissions(name RoleName) []Permission {
	perms := defaultPermissions[name]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Role is a catalog entry. Roles are unique by Name.
type Role struct {
	ID          string       `json:"id"`
	Name        RoleName     `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// NewRole builds a catalog role seeded with its default permissions.
func NewRole(name RoleName, description string) *Role {
	if description == "" {
		description = strings.ReplaceAll(strings.ToLower(string(name)), "_", " ")
	}
	return &Role{Name: name, Description: description, Permissions: DefaultPermissions(name)}
}
