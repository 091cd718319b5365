package authz

import "strings"

// Role is the dashboard privilege level persisted on a user record.
type Role string

const (
	// RoleAdmin has full access including user and cache management.
	RoleAdmin Role = "ADMIN"
	// RoleOperator can create and modify dashboard records.
	RoleOperator Role = "OPERATOR"
	// RoleViewer has read-only access.
	RoleViewer Role = "VIEWER"
)

// ParseRole normalises a stored role value. Unknown or empty values return
// false; they carry zero privilege but are not an authentication failure.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOperator:
		return RoleOperator, true
	case RoleViewer:
		return RoleViewer, true
	default:
		return "", false
	}
}

// Level maps the role onto the total privilege order ADMIN > OPERATOR >
// VIEWER. Unknown roles rank below VIEWER.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleOperator:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r satisfies the required minimum role.
func (r Role) AtLeast(min Role) bool {
	return min.Level() > 0 && r.Level() >= min.Level()
}
