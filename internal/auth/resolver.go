package auth

import (
	"slices"
	"strings"
)

// EffectiveAuthorities returns the sorted, de-duplicated role names and
// permission codes reachable through the user's roles, whatever the
// permission's is_active flag. Role names have any ROLE_ prefix stripped.
func EffectiveAuthorities(u *User) Authorities {
	roles := make([]string, 0, len(u.Roles))
	perms := make([]string, 0)

	for _, r := range u.Roles {
		roles = append(roles, strings.TrimPrefix(r.Name, rolePrefix))
		for _, p := range r.Permissions {
			perms = append(perms, p.Code)
		}
	}

	slices.Sort(roles)
	slices.Sort(perms)
	return Authorities{
		Roles:       slices.Compact(roles),
		Permissions: slices.Compact(perms),
	}
}

// EffectiveScope returns the scope of the first assignment of the user's
// first role. Roles are ordered by name and assignments by creation, so the
// choice is stable. No roles or no assignments yields an unscoped Scope.
func EffectiveScope(u *User) Scope {
	if len(u.Roles) == 0 || len(u.Roles[0].Assignments) == 0 {
		return Scope{}
	}

	a := u.Roles[0].Assignments[0]
	tenant := a.TenantID
	return Scope{
		TenantID:       &tenant,
		PortfolioID:    copyID(a.PortfolioID),
		SubPortfolioID: copyID(a.SubPortfolioID),
	}
}

// HasRole reports whether the user holds the named role, ignoring any ROLE_ prefix.
func HasRole(roles []string, name string) bool {
	want := strings.TrimPrefix(name, rolePrefix)
	for _, r := range roles {
		if strings.TrimPrefix(r, rolePrefix) == want {
			return true
		}
	}
	return false
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
