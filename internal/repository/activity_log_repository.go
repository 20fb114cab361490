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

const activitySelect = `SELECT id, user_id, user_name, user_email, action, entity_type, entity_id, description,
       old_values, new_values, ip_address, user_agent, created_at
	FROM activity_logs`

var activityColumns = Columns{
	"id":          "id",
	"user_id":     "user_id",
	"user_name":   "user_name",
	"user_email":  "user_email",
	"action":      "action",
	"entity_type": "entity_type",
	"entity_id":   "entity_id",
	"description": "description",
}

// ActivityLogRepository persists audit entries. Rows are immutable once written.
type ActivityLogRepository struct {
	db *sqlx.DB
}

// NewActivityLogRepository constructs the repository.
func NewActivityLogRepository(db *sqlx.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create inserts an activity log entry.
func (r *ActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs
	(id, user_id, user_name, user_email, action, entity_type, entity_id, description, old_values, new_values, ip_address, user_agent, created_at)
	VALUES (:id, :user_id, :user_name, :user_email, :action, :entity_type, :entity_id, :description, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// List returns one page of entries matching filter, newest first, with the total count.
func (r *ActivityLogRepository) List(ctx context.Context, filter Filter, page models.Page) ([]models.ActivityLog, int, error) {
	where, args, err := filter.clause(activityColumns, nil)
	if err != nil {
		return nil, 0, err
	}
	exec := database.Conn(ctx, r.db)

	var total int
	if err := sqlx.GetContext(ctx, exec, &total, fmt.Sprintf("SELECT COUNT(*) FROM activity_logs WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", activitySelect, where, page.Size, page.Offset())
	entries := make([]models.ActivityLog, 0)
	if err := sqlx.SelectContext(ctx, exec, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}
	return entries, total, nil
}

// FindOne returns the single entry matching filter or sql.ErrNoRows.
func (r *ActivityLogRepository) FindOne(ctx context.Context, filter Filter) (*models.ActivityLog, error) {
	where, args, err := filter.clause(activityColumns, nil)
	if err != nil {
		return nil, err
	}
	var entry models.ActivityLog
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &entry, fmt.Sprintf("%s WHERE %s LIMIT 1", activitySelect, where), args...); err != nil {
		return nil, err
	}
	return &entry, nil
}
