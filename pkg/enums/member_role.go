package enums

import "fmt"

// MemberRole distinguishes customers from store staff on API routes.
type MemberRole string

const (
	MemberRoleCustomer MemberRole = "customer"
	MemberRoleStaff    MemberRole = "staff"
	MemberRoleAdmin    MemberRole = "admin"
)

var validMemberRoles = []MemberRole{
	MemberRoleCustomer,
	MemberRoleStaff,
	MemberRoleAdmin,
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role may drive fulfillment transitions.
func (m MemberRole) IsStaff() bool {
	return m == MemberRoleStaff || m == MemberRoleAdmin
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
