package models

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// Valid reports whether the status is known.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskPriority ranks tasks.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "LOW"
	TaskPriorityNormal   TaskPriority = "NORMAL"
	TaskPriorityHigh     TaskPriority = "HIGH"
	TaskPriorityCritical TaskPriority = "CRITICAL"
)

// Valid reports whether the priority is known.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityNormal, TaskPriorityHigh, TaskPriorityCritical:
		return true
	default:
		return false
	}
}

// ApprovalStatus is the review decision on a task.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Valid reports whether the approval status is known.
func (a ApprovalStatus) Valid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// Task is an internal work item with a creator and an optional assignee.
type Task struct {
	ID                   string         `db:"id" json:"id"`
	Title                string         `db:"title" json:"title"`
	Description          string         `db:"description" json:"description"`
	Category             string         `db:"category" json:"category"`
	CreatedBy            string         `db:"created_by" json:"created_by"`
	AssignedTo           *string        `db:"assigned_to" json:"assigned_to,omitempty"`
	Status               TaskStatus     `db:"status" json:"status"`
	Priority             TaskPriority   `db:"priority" json:"priority"`
	ApprovalStatus       ApprovalStatus `db:"approval_status" json:"approval_status"`
	CompletionPercentage int            `db:"completion_percentage" json:"completion_percentage"`
	Notes                string         `db:"notes" json:"notes"`
	DueDate              *time.Time     `db:"due_date" json:"due_date,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
	CreatorName          *string        `db:"creator_name" json:"creator_name,omitempty"`
	AssigneeName         *string        `db:"assignee_name" json:"assignee_name,omitempty"`
}

// Assignee returns the assignee id or an empty string.
func (t *Task) Assignee() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

// Summary is the snapshot recorded when a task is created.
func (t *Task) Summary() Snapshot {
	return Snapshot{
		"title":       t.Title,
		"category":    t.Category,
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"assigned_to": nullable(t.Assignee()),
	}
}

// Snapshot captures every mutable column in its stored JSON shape.
func (t *Task) Snapshot() Snapshot {
	snap := Snapshot{}
	for _, f := range TaskFields {
		snap[string(f)] = t.Value(f)
	}
	return snap.Normalize()
}

// TaskFields lists the mutable task columns.
var TaskFields = []Field{
	FieldTitle, FieldDescription, FieldCategory, FieldAssignedTo, FieldStatus, FieldPriority,
	FieldApprovalStatus, FieldNotes, FieldCompletionPercentage, FieldDueDate,
}

// Value returns the current value of a field in the shape stored by Changes.
func (t *Task) Value(f Field) interface{} {
	switch f {
	case FieldTitle:
		return t.Title
	case FieldDescription:
		return t.Description
	case FieldCategory:
		return t.Category
	case FieldAssignedTo:
		return nullable(t.Assignee())
	case FieldStatus:
		return string(t.Status)
	case FieldPriority:
		return string(t.Priority)
	case FieldApprovalStatus:
		return string(t.ApprovalStatus)
	case FieldNotes:
		return t.Notes
	case FieldCompletionPercentage:
		return t.CompletionPercentage
	case FieldDueDate:
		if t.DueDate == nil {
			return nil
		}
		return t.DueDate.UTC()
	default:
		return nil
	}
}

// TaskFilter captures listing criteria.
type TaskFilter struct {
	Search         string
	Status         []TaskStatus
	Priority       []TaskPriority
	ApprovalStatus string
	Category       string
	AssignedTo     string
	Page           int
	PageSize       int
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
