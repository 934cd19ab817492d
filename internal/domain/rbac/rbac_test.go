package rbac

import "testing"

func strptr(s string) *string { return &s }

// TestEffectiveRole — дополнение повышает роль, но никогда не понижает.
func TestEffectiveRole(t *testing.T) {
	tests := []struct {
		name     string
		idpRole  string
		override *string
		want     string
	}{
		{"admin без дополнения", RoleAdmin, nil, RoleAdmin},
		{"user без дополнения", RoleUser, nil, RoleUser},
		{"user повышен до admin", RoleUser, strptr(RoleAdmin), RoleAdmin},
		{"попытка понизить admin до user игнорируется", RoleAdmin, strptr(RoleUser), RoleAdmin},
		{"дополнение совпадает с ролью IdP", RoleUser, strptr(RoleUser), RoleUser},
		{"роль из IdP отсутствует, дополнение user", "", strptr(RoleUser), RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveRole(tt.idpRole, tt.override); got != tt.want {
				t.Errorf("EffectiveRole(%q, ...) = %q, хотели %q", tt.idpRole, got, tt.want)
			}
		})
	}
}

// TestHighestRole — старшая роль набора.
func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{"пустой набор", nil, ""},
		{"только admin", []string{RoleAdmin}, RoleAdmin},
		{"только user", []string{RoleUser}, RoleUser},
		{"admin затем user", []string{RoleAdmin, RoleUser}, RoleAdmin},
		{"user затем admin", []string{RoleUser, RoleAdmin}, RoleAdmin},
		{"повторы user", []string{RoleUser, RoleUser}, RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HighestRole(tt.roles); got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}

// TestMapGroupsToRole — сопоставление групп IdP с ролями.
func TestMapGroupsToRole(t *testing.T) {
	adminGroups := []string{"tasktrack-admins", "devops"}
	userGroups := []string{"tasktrack-users", "qa-team"}

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"группа администраторов", []string{"tasktrack-admins"}, RoleAdmin},
		{"группа пользователей", []string{"tasktrack-users"}, RoleUser},
		{"обе группы дают старшую роль", []string{"tasktrack-users", "tasktrack-admins"}, RoleAdmin},
		{"вторая admin-группа", []string{"devops"}, RoleAdmin},
		{"вторая user-группа", []string{"qa-team"}, RoleUser},
		{"чужие группы", []string{"marketing", "sales"}, ""},
		{"без групп", nil, ""},
		{"совпадение среди шума", []string{"x", "tasktrack-users", "y"}, RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapGroupsToRole(tt.groups, adminGroups, userGroups); got != tt.want {
				t.Errorf("MapGroupsToRole(%v) = %q, хотели %q", tt.groups, got, tt.want)
			}
		})
	}
}

// TestIsValidRole — распознаются только объявленные роли.
func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleUser, true},
		{"superadmin", false},
		{"ADMIN", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := IsValidRole(tt.role); got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}
