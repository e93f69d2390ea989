package models

import "time"

// Roles gate what a user may do with the covers.
const (
	RoleOperator  = "operator"  // motion commands and reads
	RoleInstaller = "installer" // also calibration and switch simulation
)

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // don’t expose hash
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller carried by a token.
type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CanMaintain reports whether the caller may run maintenance actions.
func (i Identity) CanMaintain() bool {
	return i.Role == RoleInstaller
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	return r == RoleOperator || r == RoleInstaller
}
