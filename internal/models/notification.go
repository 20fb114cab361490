package models

import "time"

// NotificationType tags the event a notification describes.
type NotificationType string

const (
	NotificationRequest        NotificationType = "request"
	NotificationRequestStatus  NotificationType = "request_status"
	NotificationTaskAssigned   NotificationType = "task_assigned"
	NotificationTaskUnassigned NotificationType = "task_unassigned"
	NotificationTaskUpdated    NotificationType = "task_updated"
	NotificationTaskApproval   NotificationType = "task_approval"
	NotificationTaskDeleted    NotificationType = "task_deleted"
)

// Notification is a message addressed to a single recipient.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	Type        NotificationType `db:"type" json:"type"`
	RelatedID   *string          `db:"related_id" json:"related_id,omitempty"`
	RelatedType *string          `db:"related_type" json:"related_type,omitempty"`
	IsRead      bool             `db:"is_read" json:"is_read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	ReadAt      *time.Time       `db:"read_at" json:"read_at,omitempty"`
}

// NotificationFilter captures inbox listing criteria.
type NotificationFilter struct {
	UnreadOnly bool
	Type       NotificationType
	Page       int
	PageSize   int
}
