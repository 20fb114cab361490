package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
)

const executiveDepartment = "Başkanlık"

var (
	requestRowColumns = []string{"id", "user_id", "department", "name", "identity_number", "phone", "email", "address",
		"type", "title", "description", "status", "created_at", "updated_at", "submitter_name"}
	taskRowColumns = []string{"id", "title", "description", "category", "created_by", "assigned_to", "status", "priority",
		"approval_status", "completion_percentage", "notes", "due_date", "created_at", "updated_at", "creator_name", "assignee_name"}
)

func member(id, department string) *models.Actor {
	return &models.Actor{ID: id, Name: "User " + id, Email: id + "@example.com", Role: models.RoleMember, Department: department}
}

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func requestRows(requests ...models.Request) *sqlmock.Rows {
	rows := sqlmock.NewRows(requestRowColumns)
	for _, r := range requests {
		rows.AddRow(r.ID, r.UserID, r.Department, r.Name, r.IdentityNumber, r.Phone, r.Email, r.Address,
			r.Type, r.Title, r.Description, string(r.Status), r.CreatedAt, r.UpdatedAt, driverValue(r.SubmitterName))
	}
	return rows
}

func taskRows(tasks ...models.Task) *sqlmock.Rows {
	rows := sqlmock.NewRows(taskRowColumns)
	for _, t := range tasks {
		var due interface{}
		if t.DueDate != nil {
			due = *t.DueDate
		}
		rows.AddRow(t.ID, t.Title, t.Description, t.Category, t.CreatedBy, driverValue(t.AssignedTo), string(t.Status), string(t.Priority),
			string(t.ApprovalStatus), t.CompletionPercentage, t.Notes, due, t.CreatedAt, t.UpdatedAt, driverValue(t.CreatorName), driverValue(t.AssigneeName))
	}
	return rows
}

// notificationStoreStub keeps notifications in memory. onCreate runs before each insert.
type notificationStoreStub struct {
	mu       sync.Mutex
	items    []models.Notification
	failFor  map[string]error
	onCreate func(n *models.Notification)
}

func (s *notificationStoreStub) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onCreate != nil {
		s.onCreate(n)
	}
	if err := s.failFor[n.UserID]; err != nil {
		return err
	}
	n.ID = fmt.Sprintf("n-%d", len(s.items)+1)
	n.CreatedAt = time.Now().UTC()
	s.items = append(s.items, *n)
	return nil
}

func (s *notificationStoreStub) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.items...)
}

func (s *notificationStoreStub) recipients() []string {
	var ids []string
	for _, n := range s.all() {
		ids = append(ids, n.UserID)
	}
	return ids
}

func (s *notificationStoreStub) forRecipient(id string) []models.Notification {
	var out []models.Notification
	for _, n := range s.all() {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	return out
}

type directoryStub map[string][]string

func (d directoryStub) Members(ctx context.Context, department string) ([]string, error) {
	return append([]string(nil), d[department]...), nil
}

// activityStoreStub records audit entries and serves them back regardless of filter.
type activityStoreStub struct {
	mu      sync.Mutex
	entries []models.ActivityLog
	err     error
}

func (s *activityStoreStub) Create(ctx context.Context, entry *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	entry.ID = fmt.Sprintf("log-%d", len(s.entries)+1)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *activityStoreStub) List(ctx context.Context, filter repository.Filter, page models.Page) ([]models.ActivityLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := page.Offset()
	if start > len(s.entries) {
		start = len(s.entries)
	}
	end := start + page.Size
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return append([]models.ActivityLog(nil), s.entries[start:end]...), len(s.entries), nil
}

func (s *activityStoreStub) FindOne(ctx context.Context, filter repository.Filter) (*models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, fmt.Errorf("no entries")
	}
	entry := s.entries[0]
	return &entry, nil
}

func (s *activityStoreStub) logged() []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ActivityLog(nil), s.entries...)
}

func strPtr(v string) *string {
	return &v
}

func driverValue(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
