package roles

import "fmt"

// Role classifies an authenticated principal. The zero value means the
// classification has not been resolved yet and is never produced by a Resolver.
type Role uint8

const (
	// LoggedOut applies to anonymous visitors and to principals without any record.
	LoggedOut Role = iota + 1
	// Customer is a principal with a non-admin user record.
	Customer
	// RestaurantStaff is a principal whose email owns a restaurant record.
	RestaurantStaff
	// Administrator is a principal with an admin user record.
	Administrator
)

var names = map[Role]string{
	LoggedOut:       "logged_out",
	Customer:        "user",
	RestaurantStaff: "restaurant",
	Administrator:   "admin",
}

// All lists the concrete roles.
func All() []Role {
	return []Role{LoggedOut, Customer, RestaurantStaff, Administrator}
}

// Valid reports whether r is one of the four concrete roles.
func (r Role) Valid() bool {
	_, ok := names[r]
	return ok
}

// Authenticated reports whether r belongs to a signed-in principal.
func (r Role) Authenticated() bool {
	return r.Valid() && r != LoggedOut
}

func (r Role) String() string {
	if name, ok := names[r]; ok {
		return name
	}
	return "unresolved"
}

// Parse converts a role tag back into a Role.
func Parse(tag string) (Role, error) {
	for role, name := range names {
		if name == tag {
			return role, nil
		}
	}
	return 0, fmt.Errorf("roles: unknown role %q", tag)
}
