package models

import "time"

// RequestStatus doubles as urgency while a request is open.
type RequestStatus string

const (
	RequestStatusLow        RequestStatus = "LOW"
	RequestStatusNormal     RequestStatus = "NORMAL"
	RequestStatusUrgent     RequestStatus = "URGENT"
	RequestStatusVeryUrgent RequestStatus = "VERY_URGENT"
	RequestStatusCritical   RequestStatus = "CRITICAL"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
	RequestStatusCancelled  RequestStatus = "CANCELLED"
)

// Valid reports whether the status is known.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusLow, RequestStatusNormal, RequestStatusUrgent, RequestStatusVeryUrgent,
		RequestStatusCritical, RequestStatusCompleted, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// Request is a citizen or service ticket owned by a department.
type Request struct {
	ID             string        `db:"id" json:"id"`
	UserID         string        `db:"user_id" json:"user_id"`
	Department     string        `db:"department" json:"department"`
	Name           string        `db:"name" json:"name"`
	IdentityNumber string        `db:"identity_number" json:"identity_number"`
	Phone          string        `db:"phone" json:"phone"`
	Email          string        `db:"email" json:"email"`
	Address        string        `db:"address" json:"address"`
	Type           string        `db:"type" json:"type"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description"`
	Status         RequestStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	SubmitterName  *string       `db:"submitter_name" json:"submitter_name,omitempty"`
}

// Summary is the snapshot recorded when a request is created.
func (r *Request) Summary() Snapshot {
	return Snapshot{
		"name":       r.Name,
		"title":      r.Title,
		"status":     string(r.Status),
		"department": r.Department,
		"type":       r.Type,
	}
}

// Snapshot captures every mutable column.
func (r *Request) Snapshot() Snapshot {
	return Snapshot{
		"department":      r.Department,
		"name":            r.Name,
		"identity_number": r.IdentityNumber,
		"phone":           r.Phone,
		"email":           r.Email,
		"address":         r.Address,
		"type":            r.Type,
		"title":           r.Title,
		"description":     r.Description,
		"status":          string(r.Status),
	}
}

// Value returns the current value of a field in the shape stored by Changes.
func (r *Request) Value(f Field) interface{} {
	switch f {
	case FieldDepartment:
		return r.Department
	case FieldName:
		return r.Name
	case FieldIdentityNumber:
		return r.IdentityNumber
	case FieldPhone:
		return r.Phone
	case FieldEmail:
		return r.Email
	case FieldAddress:
		return r.Address
	case FieldType:
		return r.Type
	case FieldTitle:
		return r.Title
	case FieldDescription:
		return r.Description
	case FieldStatus:
		return string(r.Status)
	default:
		return nil
	}
}

// RequestFilter captures listing criteria.
type RequestFilter struct {
	Search     string
	Status     []RequestStatus
	Department string
	Type       string
	Page       int
	PageSize   int
}
