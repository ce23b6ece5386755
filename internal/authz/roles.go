package authz

import "strings"

type Role string

const (
	// RoleViewer may read queue state.
	RoleViewer Role = "viewer"
	// RoleOperator may also enqueue and trigger runs.
	RoleOperator Role = "operator"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
}

func IsValidRole(r Role) bool {
	_, ok := roleRank[r]
	return ok
}

// NormalizeRoles lowercases, drops unknown and duplicate roles, and falls back to
// viewer when nothing valid is left.
func NormalizeRoles(roles []Role) []Role {
	seen := make(map[Role]bool, len(roles))
	var out []Role
	for _, r := range roles {
		r = Role(strings.ToLower(strings.TrimSpace(string(r))))
		if !IsValidRole(r) || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		out = []Role{RoleViewer}
	}
	return out
}

func HasAtLeast(roles []Role, required Role) bool {
	for _, r := range roles {
		if roleRank[r] >= roleRank[required] {
			return true
		}
	}
	return false
}
