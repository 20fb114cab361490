package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/pkg/database"
)

const notificationSelect = `SELECT id, user_id, title, message, type, related_id, related_type, is_read, created_at, read_at
	FROM notifications`

var notificationColumns = Columns{
	"id":           "id",
	"user_id":      "user_id",
	"type":         "type",
	"is_read":      "is_read",
	"related_id":   "related_id",
	"related_type": "related_type",
}

// NotificationRepository persists notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications
	(id, user_id, title, message, type, related_id, related_type, is_read, created_at, read_at)
	VALUES (:id, :user_id, :title, :message, :type, :related_id, :related_type, :is_read, :created_at, :read_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns one page of notifications matching filter, newest first, with the total count.
func (r *NotificationRepository) List(ctx context.Context, filter Filter, page models.Page) ([]models.Notification, int, error) {
	where, args, err := filter.clause(notificationColumns, nil)
	if err != nil {
		return nil, 0, err
	}
	exec := database.Conn(ctx, r.db)

	var total int
	if err := sqlx.GetContext(ctx, exec, &total, fmt.Sprintf("SELECT COUNT(*) FROM notifications WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", notificationSelect, where, page.Size, page.Offset())
	items := make([]models.Notification, 0)
	if err := sqlx.SelectContext(ctx, exec, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// Count returns how many notifications match filter.
func (r *NotificationRepository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args, err := filter.clause(notificationColumns, nil)
	if err != nil {
		return 0, err
	}
	var total int
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &total, fmt.Sprintf("SELECT COUNT(*) FROM notifications WHERE %s", where), args...); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, nil
}

// MarkRead flags every unread notification matching filter as read and reports the affected row count.
func (r *NotificationRepository) MarkRead(ctx context.Context, filter Filter, at time.Time) (int64, error) {
	where, args, err := filter.And(Eq("is_read", false)).clause(notificationColumns, []interface{}{at})
	if err != nil {
		return 0, err
	}
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, fmt.Sprintf("UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE %s", where), args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}
