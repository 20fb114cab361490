package models

import "time"

// StatusHistoryEntry is one immutable request status transition.
type StatusHistoryEntry struct {
	ID                  string        `db:"id" json:"id"`
	RequestID           string        `db:"request_id" json:"request_id"`
	OldStatus           RequestStatus `db:"old_status" json:"old_status"`
	NewStatus           RequestStatus `db:"new_status" json:"new_status"`
	UpdatedBy           string        `db:"updated_by" json:"updated_by"`
	UpdatedByDepartment string        `db:"updated_by_department" json:"updated_by_department"`
	Comment             *string       `db:"comment" json:"comment,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedByName       *string       `db:"updated_by_name" json:"updated_by_name,omitempty"`
}
