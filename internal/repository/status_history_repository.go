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

// StatusHistoryRepository appends and reads request status transitions. Rows are never updated or deleted.
type StatusHistoryRepository struct {
	db *sqlx.DB
}

// NewStatusHistoryRepository constructs the repository.
func NewStatusHistoryRepository(db *sqlx.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

// Append inserts a transition row. Inside a transaction it joins the caller's commit.
func (r *StatusHistoryRepository) Append(ctx context.Context, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO request_status_history
	(id, request_id, old_status, new_status, updated_by, updated_by_department, comment, created_at)
	VALUES (:id, :request_id, :old_status, :new_status, :updated_by, :updated_by_department, :comment, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, entry); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

// ListByRequest returns every transition of a request in chronological order.
func (r *StatusHistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]models.StatusHistoryEntry, error) {
	const query = `SELECT h.id, h.request_id, h.old_status, h.new_status, h.updated_by, h.updated_by_department, h.comment,
       h.created_at, u.name AS updated_by_name
	FROM request_status_history h
	LEFT JOIN users u ON u.id = h.updated_by
	WHERE h.request_id = $1
	ORDER BY h.created_at ASC, h.id ASC`
	entries := make([]models.StatusHistoryEntry, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &entries, query, requestID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}
