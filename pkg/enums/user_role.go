package enums

import "slices"

// UserRole is the marketplace role carried by access tokens.
type UserRole string

const (
	UserRoleBuyer  UserRole = "buyer"
	UserRoleSeller UserRole = "seller"
	UserRoleAdmin  UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleBuyer,
	UserRoleSeller,
	UserRoleAdmin,
}

func (u UserRole) String() string {
	return string(u)
}

func (u UserRole) IsValid() bool {
	return slices.Contains(validUserRoles, u)
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	return parse(validUserRoles, value, "role")
}
