package auth

import (
	"fmt"
	"slices"
	"testing"
)

func TestEffectiveAuthorities(t *testing.T) {
	auth := EffectiveAuthorities(testUser())

	if want := []string{"AGENTE", "SUPERVISOR"}; !slices.Equal(auth.Roles, want) {
		t.Errorf("Roles = %v, want %v", auth.Roles, want)
	}
	// Duplicates collapse.
	if want := []string{"GESTIONES_CREAR", "PAGOS_APROBAR", "PAGOS_EXPORTAR"}; !slices.Equal(auth.Permissions, want) {
		t.Errorf("Permissions = %v, want %v", auth.Permissions, want)
	}
}

func TestEffectiveAuthorities_KeepsInactivePermissions(t *testing.T) {
	u := &User{Roles: []Role{{Name: "AGENTE", Permissions: []Permission{
		{Code: "CLIENTES_VER", IsActive: true},
		{Code: "PAGOS_VER", IsActive: false},
	}}}}

	got := EffectiveAuthorities(u).Permissions
	if want := []string{"CLIENTES_VER", "PAGOS_VER"}; !slices.Equal(got, want) {
		t.Errorf("Permissions = %v, want %v", got, want)
	}
}

func TestEffectiveAuthorities_NoRoles(t *testing.T) {
	auth := EffectiveAuthorities(&User{})
	if len(auth.Roles) != 0 || len(auth.Permissions) != 0 {
		t.Errorf("EffectiveAuthorities() = %+v, want empty", auth)
	}
	if auth.Roles == nil || auth.Permissions == nil {
		t.Error("empty authorities should be non-nil slices for JSON encoding")
	}
}

func TestEffectiveScope(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want Scope
	}{
		{
			name: "no roles",
			user: &User{},
			want: Scope{},
		},
		{
			name: "role without assignments",
			user: &User{Roles: []Role{{Name: "AGENTE"}}},
			want: Scope{},
		},
		{
			name: "tenant",
			user: &User{Roles: []Role{{Name: "AGENTE", Assignments: []RoleAssignment{
				{Kind: ScopeTenant, TenantID: 4},
			}}}},
			want: Scope{TenantID: int64p(4)},
		},
		{
			name: "first role first assignment",
			user: &User{Roles: []Role{
				{Name: "ADMIN", Assignments: []RoleAssignment{
					{Kind: ScopeSubPortfolio, TenantID: 1, PortfolioID: int64p(2), SubPortfolioID: int64p(3)},
					{Kind: ScopeTenant, TenantID: 9},
				}},
				{Name: "AGENTE", Assignments: []RoleAssignment{
					{Kind: ScopeTenant, TenantID: 7},
				}},
			}},
			want: Scope{TenantID: int64p(1), PortfolioID: int64p(2), SubPortfolioID: int64p(3)},
		},
		{
			name: "first role unscoped hides later roles",
			user: &User{Roles: []Role{
				{Name: "ADMIN"},
				{Name: "AGENTE", Assignments: []RoleAssignment{{Kind: ScopeTenant, TenantID: 7}}},
			}},
			want: Scope{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveScope(tt.user)
			if !equalID(got.TenantID, tt.want.TenantID) ||
				!equalID(got.PortfolioID, tt.want.PortfolioID) ||
				!equalID(got.SubPortfolioID, tt.want.SubPortfolioID) {
				t.Errorf("EffectiveScope() = %s, want %s", fmtScope(got), fmtScope(tt.want))
			}
		})
	}
}

func TestHasRole(t *testing.T) {
	roles := []string{"AGENTE", "ROLE_ADMIN"}
	if !HasRole(roles, "ADMIN") {
		t.Error("HasRole(ADMIN) should match ROLE_ADMIN")
	}
	if !HasRole(roles, "ROLE_AGENTE") {
		t.Error("HasRole(ROLE_AGENTE) should match AGENTE")
	}
	if HasRole(roles, "SUPERVISOR") {
		t.Error("HasRole(SUPERVISOR) should be false")
	}
}

func TestRoleAssignment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		a       RoleAssignment
		wantErr bool
	}{
		{"tenant", RoleAssignment{Kind: ScopeTenant, TenantID: 1}, false},
		{"tenant with portfolio", RoleAssignment{Kind: ScopeTenant, TenantID: 1, PortfolioID: int64p(2)}, true},
		{"portfolio", RoleAssignment{Kind: ScopePortfolio, TenantID: 1, PortfolioID: int64p(2)}, false},
		{"portfolio missing id", RoleAssignment{Kind: ScopePortfolio, TenantID: 1}, true},
		{"portfolio with sub", RoleAssignment{Kind: ScopePortfolio, TenantID: 1, PortfolioID: int64p(2), SubPortfolioID: int64p(3)}, true},
		{"sub-portfolio", RoleAssignment{Kind: ScopeSubPortfolio, TenantID: 1, PortfolioID: int64p(2), SubPortfolioID: int64p(3)}, false},
		{"sub-portfolio missing portfolio", RoleAssignment{Kind: ScopeSubPortfolio, TenantID: 1, SubPortfolioID: int64p(3)}, true},
		{"missing tenant", RoleAssignment{Kind: ScopeTenant}, true},
		{"unknown kind", RoleAssignment{Kind: "REGION", TenantID: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtScope(s Scope) string {
	f := func(p *int64) string {
		if p == nil {
			return "nil"
		}
		return fmt.Sprint(*p)
	}
	return fmt.Sprintf("{%s %s %s}", f(s.TenantID), f(s.PortfolioID), f(s.SubPortfolioID))
}
