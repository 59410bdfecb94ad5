// Package policy decides what a principal may see and change on tasks.
// Every function here is pure: decisions depend only on the principal,
// the task snapshot and the requested change.
package policy

import (
	"teamtask/internal/domain"
	"teamtask/internal/engine/auth"
)

type Operation int

const (
	OpCreate Operation = iota + 1
	OpList
	OpRead
	OpUpdate
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpList:
		return "list"
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// privilegedRoles bypass the ownership predicate.
var privilegedRoles = []domain.Role{domain.RoleManager}

// RequiredRoles is the coarse gate of op. An empty set means any
// authenticated principal passes.
func RequiredRoles(op Operation) []domain.Role {
	switch op {
	case OpCreate, OpDelete:
		return []domain.Role{domain.RoleManager}
	default:
		return nil
	}
}

// Decision is the outcome of CanAct.
type Decision struct {
	Allowed bool
	// Fields is the permitted field set for OpUpdate.
	Fields   domain.FieldSet
	Required []domain.Role
	Reason   string
}

// Err converts a denied decision into a ForbiddenError.
func (d Decision) Err(p domain.Principal) error {
	if d.Allowed {
		return nil
	}
	return auth.ForbiddenError{Required: d.Required, Actual: p.Role, Reason: d.Reason}
}

func privileged(p domain.Principal) bool {
	return auth.Authorize(p.Role, privilegedRoles...)
}

// Owns is the ownership predicate: the task is assigned to the principal.
func Owns(p domain.Principal, t domain.Task) bool {
	return p.ID != "" && t.AssignedTo == p.ID
}

// CanAct applies the coarse gate of op and then the ownership rules.
func CanAct(p domain.Principal, t domain.Task, op Operation) Decision {
	if required := RequiredRoles(op); !auth.Authorize(p.Role, required...) {
		return Decision{Required: required}
	}
	if privileged(p) {
		switch op {
		case OpUpdate:
			return Decision{Allowed: true, Fields: domain.AllFields}
		default:
			return Decision{Allowed: true}
		}
	}
	owned := Owns(p, t)
	switch op {
	case OpList, OpRead:
		if owned {
			return Decision{Allowed: true}
		}
		return Decision{Required: privilegedRoles, Reason: "you may only view tasks assigned to you"}
	case OpUpdate:
		if owned {
			return Decision{Allowed: true, Fields: domain.NewFieldSet(domain.FieldStatus)}
		}
		return Decision{Required: privilegedRoles, Reason: "you may only update tasks assigned to you"}
	default:
		return Decision{Required: privilegedRoles}
	}
}

// AuthorizeCreate gates task creation. Assignee existence is checked by the caller.
func AuthorizeCreate(p domain.Principal) error {
	return auth.Require(p, RequiredRoles(OpCreate)...)
}

func AuthorizeRead(p domain.Principal, t domain.Task) error {
	return CanAct(p, t, OpRead).Err(p)
}

// AuthorizeUpdate returns patch narrowed to the fields p may write on t.
// Fields outside the permitted set are dropped without error.
func AuthorizeUpdate(p domain.Principal, t domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error) {
	d := CanAct(p, t, OpUpdate)
	if !d.Allowed {
		return domain.TaskPatch{}, d.Err(p)
	}
	return patch.Restrict(d.Fields), nil
}

func AuthorizeDelete(p domain.Principal, t domain.Task) error {
	return CanAct(p, t, OpDelete).Err(p)
}

// TaskQuery is the visibility scope plus filters of a task listing.
type TaskQuery struct {
	AssignedTo string
	Status     domain.Status
}

// Scope narrows q to what p may list. Non-privileged principals are always
// scoped to their own tasks; a client-supplied assignee is replaced, not merged.
// The status filter is kept for everyone.
func Scope(p domain.Principal, q TaskQuery) TaskQuery {
	if !privileged(p) {
		q.AssignedTo = p.ID
	}
	return q
}
