package enums

import (
	"fmt"
	"strings"
)

// Role is the storefront role attached to a backend user record.
// RoleGuest is never stored; it describes the absence of a session.
type Role string

const (
	RoleGuest  Role = "guest"
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

var validRoles = []Role{
	RoleGuest,
	RoleUser,
	RoleSeller,
	RoleAdmin,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// SelfAssignable reports whether a user may pick this role at sign-up.
func (r Role) SelfAssignable() bool {
	return r == RoleUser || r == RoleSeller
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
