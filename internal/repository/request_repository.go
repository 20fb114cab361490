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

const requestSelect = `SELECT r.id, r.user_id, r.department, r.name, r.identity_number, r.phone, r.email, r.address,
       r.type, r.title, r.description, r.status, r.created_at, r.updated_at, u.name AS submitter_name
	FROM requests r
	LEFT JOIN users u ON u.id = r.user_id`

var requestColumns = Columns{
	"id":          "r.id",
	"user_id":     "r.user_id",
	"department":  "r.department",
	"status":      "r.status",
	"type":        "r.type",
	"title":       "r.title",
	"name":        "r.name",
	"description": "r.description",
	"email":       "r.email",
}

var requestSettable = map[models.Field]string{
	models.FieldDepartment:     "department",
	models.FieldName:           "name",
	models.FieldIdentityNumber: "identity_number",
	models.FieldPhone:          "phone",
	models.FieldEmail:          "email",
	models.FieldAddress:        "address",
	models.FieldType:           "type",
	models.FieldTitle:          "title",
	models.FieldDescription:    "description",
	models.FieldStatus:         "status",
}

// RequestRepository persists requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// List returns one page of requests matching filter, newest first, with the total count.
func (r *RequestRepository) List(ctx context.Context, filter Filter, page models.Page) ([]models.Request, int, error) {
	where, args, err := filter.clause(requestColumns, nil)
	if err != nil {
		return nil, 0, err
	}
	exec := database.Conn(ctx, r.db)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM requests r WHERE %s", where)
	if err := sqlx.GetContext(ctx, exec, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	listQuery := fmt.Sprintf("%s WHERE %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", requestSelect, where, page.Size, page.Offset())
	requests := make([]models.Request, 0)
	if err := sqlx.SelectContext(ctx, exec, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	return requests, total, nil
}

// FindOne returns the single request matching filter or sql.ErrNoRows.
func (r *RequestRepository) FindOne(ctx context.Context, filter Filter) (*models.Request, error) {
	where, args, err := filter.clause(requestColumns, nil)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("%s WHERE %s LIMIT 1", requestSelect, where)
	var request models.Request
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &request, query, args...); err != nil {
		return nil, err
	}
	return &request, nil
}

// LockStatus locks the request matching filter until the surrounding transaction ends and returns its
// current status, or sql.ErrNoRows.
func (r *RequestRepository) LockStatus(ctx context.Context, filter Filter) (models.RequestStatus, error) {
	where, args, err := filter.clause(requestColumns, nil)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf("SELECT r.status FROM requests r WHERE %s FOR UPDATE", where)
	var status models.RequestStatus
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &status, query, args...); err != nil {
		return "", err
	}
	return status, nil
}

// ListIDs returns the ids of every request matching filter.
func (r *RequestRepository) ListIDs(ctx context.Context, filter Filter) ([]string, error) {
	where, args, err := filter.clause(requestColumns, nil)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT r.id FROM requests r WHERE %s", where)
	ids := make([]string, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list request ids: %w", err)
	}
	return ids, nil
}

// Create inserts a request.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	const query = `INSERT INTO requests
	(id, user_id, department, name, identity_number, phone, email, address, type, title, description, status, created_at, updated_at)
	VALUES (:id, :user_id, :department, :name, :identity_number, :phone, :email, :address, :type, :title, :description, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// Update applies changes to every request matching filter and reports the affected row count.
func (r *RequestRepository) Update(ctx context.Context, filter Filter, changes models.Changes) (int64, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	set, args, err := assignments(requestSettable, changes, nil)
	if err != nil {
		return 0, err
	}
	args = append(args, time.Now().UTC())
	set = fmt.Sprintf("%s, updated_at = $%d", set, len(args))

	where, args, err := filter.clause(requestColumns, args)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE requests AS r SET %s WHERE %s", set, where)
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update request: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes every request matching filter and reports the affected row count.
func (r *RequestRepository) Delete(ctx context.Context, filter Filter) (int64, error) {
	where, args, err := filter.clause(requestColumns, nil)
	if err != nil {
		return 0, err
	}
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, fmt.Sprintf("DELETE FROM requests AS r WHERE %s", where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete request: %w", err)
	}
	return result.RowsAffected()
}
