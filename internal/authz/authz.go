// Package authz maps directory groups to roles and roles to permissions.
// Everything here is pure: the same groups always yield the same result.
package authz

import (
	"slices"
	"strings"
)

// Role is an application role derived from directory group membership.
type Role string

const (
	RoleOperators      Role = "operators"
	RoleSupervisors    Role = "supervisors"
	RoleAdministrators Role = "administrators"
	RoleManagers       Role = "managers"
	RoleAuditors       Role = "auditors"
	RoleSupport        Role = "support"
)

// Wildcard grants every permission.
const Wildcard = "*"

// Permissions used by the security core's own endpoints.
const (
	PermLockoutRead     = "lockout:read"
	PermLockoutWrite    = "lockout:write"
	PermMonitoringRead  = "monitoring:read"
	PermMonitoringWrite = "monitoring:write"
)

// groupRoles is keyed by lowercased group name.
var groupRoles = map[string]Role{
	"operadores":      RoleOperators,
	"supervisores":    RoleSupervisors,
	"administradores": RoleAdministrators,
	"gerentes":        RoleManagers,
	"auditores":       RoleAuditors,
	"soporte":         RoleSupport,
}

var rolePermissions = map[Role][]string{
	RoleAdministrators: {Wildcard},
	RoleSupervisors:    {"trucks:read", "trucks:write", "trucks:delete", "reports:read"},
	RoleOperators:      {"trucks:read", "trucks:write"},
	RoleManagers:       {"trucks:read", "reports:read", "reports:export", "companies:read", PermMonitoringRead},
	RoleAuditors:       {"trucks:read", "reports:read", "audit:read", PermMonitoringRead, PermLockoutRead},
	RoleSupport:        {"trucks:read", "users:read", PermLockoutRead, PermLockoutWrite},
}

// RolesForGroups returns the roles granted by groups, sorted and deduplicated.
// Group names match case-insensitively; unknown groups are ignored.
func RolesForGroups(groups []string) []Role {
	roles := make([]Role, 0, len(groups))
	for _, g := range groups {
		if role, ok := groupRoles[strings.ToLower(strings.TrimSpace(g))]; ok && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return roles
}

// PermissionsForRoles returns the union of the roles' permissions, sorted.
// Any role granting the wildcard collapses the result to {"*"}.
func PermissionsForRoles(roles []Role) []string {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if p == Wildcard {
				return []string{Wildcard}
			}
			set[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	slices.Sort(perms)
	return perms
}

// Resolve maps groups straight to roles and permissions.
func Resolve(groups []string) ([]Role, []string) {
	roles := RolesForGroups(groups)
	return roles, PermissionsForRoles(roles)
}

// Has reports whether perms grant required.
func Has(perms []string, required string) bool {
	for _, p := range perms {
		if p == Wildcard || p == required {
			return true
		}
	}
	return false
}

// RoleNames converts roles to strings for claims and responses.
func RoleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}
