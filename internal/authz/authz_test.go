package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		groups    []string
		wantRoles []Role
		wantPerms []string
	}{
		{
			name:      "supervisor",
			groups:    []string{"Supervisores", "VPN Users"},
			wantRoles: []Role{RoleSupervisors},
			wantPerms: []string{"reports:read", "trucks:delete", "trucks:read", "trucks:write"},
		},
		{
			name:      "administrator collapses to wildcard",
			groups:    []string{"Operadores", "Administradores", "Auditores"},
			wantRoles: []Role{RoleAdministrators, RoleAuditors, RoleOperators},
			wantPerms: []string{Wildcard},
		},
		{
			name:      "overlapping roles are merged without duplicates",
			groups:    []string{"operadores", "SUPERVISORES", "Operadores"},
			wantRoles: []Role{RoleOperators, RoleSupervisors},
			wantPerms: []string{"reports:read", "trucks:delete", "trucks:read", "trucks:write"},
		},
		{
			name:      "no known group yields nothing",
			groups:    []string{"Domain Users"},
			wantRoles: []Role{},
			wantPerms: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles, perms := Resolve(tt.groups)
			assert.Equal(t, tt.wantRoles, roles)
			assert.Equal(t, tt.wantPerms, perms)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	groups := []string{"Gerentes", "Soporte", "Auditores"}
	firstRoles, firstPerms := Resolve(groups)
	for range 20 {
		roles, perms := Resolve(groups)
		assert.Equal(t, firstRoles, roles)
		assert.Equal(t, firstPerms, perms)
	}
}

func TestHas(t *testing.T) {
	assert.True(t, Has([]string{Wildcard}, PermLockoutWrite))
	assert.True(t, Has([]string{"trucks:read", PermMonitoringRead}, PermMonitoringRead))
	assert.False(t, Has([]string{"trucks:read"}, PermMonitoringRead))
	assert.False(t, Has(nil, "trucks:read"))
}
