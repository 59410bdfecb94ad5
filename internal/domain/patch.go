package domain

import "strings"

// Field identifies a writable task field.
type Field uint8

const (
	FieldTitle Field = 1 << iota
	FieldDescription
	FieldAssignedTo
	FieldStatus
)

// FieldSet is a set of writable task fields.
type FieldSet uint8

const (
	NoFields  FieldSet = 0
	AllFields          = FieldSet(FieldTitle | FieldDescription | FieldAssignedTo | FieldStatus)
)

func NewFieldSet(fields ...Field) FieldSet {
	var fs FieldSet
	for _, f := range fields {
		fs |= FieldSet(f)
	}
	return fs
}

func (fs FieldSet) Has(f Field) bool { return fs&FieldSet(f) != 0 }

func (fs FieldSet) Intersect(other FieldSet) FieldSet { return fs & other }

func (fs FieldSet) Empty() bool { return fs == NoFields }

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldDescription:
		return "description"
	case FieldAssignedTo:
		return "assigned_to"
	case FieldStatus:
		return "status"
	default:
		return "unknown"
	}
}

func (fs FieldSet) String() string {
	var names []string
	for _, f := range []Field{FieldTitle, FieldDescription, FieldAssignedTo, FieldStatus} {
		if fs.Has(f) {
			names = append(names, f.String())
		}
	}
	return strings.Join(names, ",")
}

// TaskPatch is a requested partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	AssignedTo  *string
	Status      *Status
}

// Fields reports which fields the patch sets.
func (p TaskPatch) Fields() FieldSet {
	var fs FieldSet
	if p.Title != nil {
		fs |= FieldSet(FieldTitle)
	}
	if p.Description != nil {
		fs |= FieldSet(FieldDescription)
	}
	if p.AssignedTo != nil {
		fs |= FieldSet(FieldAssignedTo)
	}
	if p.Status != nil {
		fs |= FieldSet(FieldStatus)
	}
	return fs
}

// Restrict drops every field not in allowed.
func (p TaskPatch) Restrict(allowed FieldSet) TaskPatch {
	if !allowed.Has(FieldTitle) {
		p.Title = nil
	}
	if !allowed.Has(FieldDescription) {
		p.Description = nil
	}
	if !allowed.Has(FieldAssignedTo) {
		p.AssignedTo = nil
	}
	if !allowed.Has(FieldStatus) {
		p.Status = nil
	}
	return p
}

// Apply returns t with the patch fields written onto it.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t
}
