package domain

import (
	"fmt"
	"strings"
)

// Role is a rank in the Admin > Manager > Member total order.
// The zero value is an unknown role with level 0.
type Role int

const (
	RoleUnknown Role = iota
	RoleMember
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleMember:  "Member",
	RoleManager: "Manager",
	RoleAdmin:   "Admin",
}

// ParseRole maps a role label to its Role. Matching ignores case and
// surrounding whitespace; unknown labels yield RoleUnknown and false.
func ParseRole(s string) (Role, bool) {
	for r, name := range roleNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return r, true
		}
	}
	return RoleUnknown, false
}

// Level returns the numeric rank used for comparisons.
func (r Role) Level() int {
	if _, ok := roleNames[r]; !ok {
		return 0
	}
	return int(r)
}

func (r Role) Valid() bool { return r.Level() > 0 }

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, ok := ParseRole(string(b))
	if !ok {
		return fmt.Errorf("invalid role %q", string(b))
	}
	*r = parsed
	return nil
}
