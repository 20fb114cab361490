package models

import "sort"

// Field identifies a mutable column of a Request or Task.
type Field string

const (
	FieldDepartment     Field = "department"
	FieldName           Field = "name"
	FieldIdentityNumber Field = "identity_number"
	FieldPhone          Field = "phone"
	FieldEmail          Field = "email"
	FieldAddress        Field = "address"
	FieldType           Field = "type"
	FieldTitle          Field = "title"
	FieldDescription    Field = "description"
	FieldStatus         Field = "status"

	FieldCategory             Field = "category"
	FieldAssignedTo           Field = "assigned_to"
	FieldPriority             Field = "priority"
	FieldApprovalStatus       Field = "approval_status"
	FieldNotes                Field = "notes"
	FieldCompletionPercentage Field = "completion_percentage"
	FieldDueDate              Field = "due_date"
)

// FieldSet is a finite set of fields.
type FieldSet map[Field]struct{}

// NewFieldSet builds a set from the given fields.
func NewFieldSet(fields ...Field) FieldSet {
	set := make(FieldSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Without returns a copy of the set minus the given fields.
func (s FieldSet) Without(fields ...Field) FieldSet {
	out := make(FieldSet, len(s))
	for f := range s {
		out[f] = struct{}{}
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Changes is a set of column assignments keyed by field.
type Changes map[Field]interface{}

// Restrict drops every change whose field is not allowed and reports the dropped fields.
func (c Changes) Restrict(allowed FieldSet) (Changes, []Field) {
	kept := make(Changes, len(c))
	var dropped []Field
	for f, v := range c {
		if allowed.Has(f) {
			kept[f] = v
			continue
		}
		dropped = append(dropped, f)
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return kept, dropped
}

// Snapshot renders the changes as an audit snapshot.
func (c Changes) Snapshot() Snapshot {
	if len(c) == 0 {
		return nil
	}
	out := make(Snapshot, len(c))
	for f, v := range c {
		out[string(f)] = v
	}
	return out.Normalize()
}
