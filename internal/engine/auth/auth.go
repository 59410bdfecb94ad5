package auth

import "teamtask/internal/domain"

// RequiredLevel is the highest level among required; zero when none are given.
func RequiredLevel(required ...domain.Role) int {
	level := 0
	for _, r := range required {
		if l := r.Level(); l > level {
			level = l
		}
	}
	return level
}

// Authorize reports whether role satisfies the required role set.
// An empty set places no floor on the role. Callers reject a missing
// principal before asking.
func Authorize(role domain.Role, required ...domain.Role) bool {
	if len(required) == 0 {
		return true
	}
	return role.Level() >= RequiredLevel(required...)
}

// Require returns a ForbiddenError when role does not satisfy required.
func Require(p domain.Principal, required ...domain.Role) error {
	if Authorize(p.Role, required...) {
		return nil
	}
	return ForbiddenError{Required: required, Actual: p.Role}
}
