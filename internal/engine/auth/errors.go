package auth

import (
	"errors"
	"fmt"
	"strings"

	"teamtask/internal/domain"
)

// Kind tags an access-control denial.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation_error"
)

// Denial is implemented by every error this package produces.
type Denial interface {
	error
	Kind() Kind
}

// UnauthenticatedError means no principal could be established.
type UnauthenticatedError struct {
	Reason string
}

func (e UnauthenticatedError) Kind() Kind { return KindUnauthenticated }

func (e UnauthenticatedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "authentication required"
}

// ErrUnauthenticated is returned when no principal is attached to a request.
var ErrUnauthenticated = UnauthenticatedError{}

// ForbiddenError indicates a failed role or ownership check.
type ForbiddenError struct {
	Required []domain.Role
	Actual   domain.Role
	Reason   string
}

func (e ForbiddenError) Kind() Kind { return KindForbidden }

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return "access denied: " + e.Reason
	}
	names := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		names = append(names, r.String())
	}
	return fmt.Sprintf("access denied: required role %s, you are %s", strings.Join(names, "/"), e.Actual)
}

// RequiredNames returns the required roles as labels.
func (e ForbiddenError) RequiredNames() []string {
	names := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		names = append(names, r.String())
	}
	return names
}

// NotFoundError reports a missing task or user.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Kind() Kind { return KindNotFound }

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Kind() Kind { return KindValidation }

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// KindOf returns the denial kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var d Denial
	if errors.As(err, &d) {
		return d.Kind(), true
	}
	return "", false
}
