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

const taskSelect = `SELECT t.id, t.title, t.description, t.category, t.created_by, t.assigned_to, t.status, t.priority,
       t.approval_status, t.completion_percentage, t.notes, t.due_date, t.created_at, t.updated_at,
       c.name AS creator_name, a.name AS assignee_name
	FROM tasks t
	LEFT JOIN users c ON c.id = t.created_by
	LEFT JOIN users a ON a.id = t.assigned_to`

var taskColumns = Columns{
	"id":              "t.id",
	"created_by":      "t.created_by",
	"assigned_to":     "t.assigned_to",
	"status":          "t.status",
	"priority":        "t.priority",
	"approval_status": "t.approval_status",
	"category":        "t.category",
	"title":           "t.title",
	"description":     "t.description",
	"notes":           "t.notes",
}

var taskSettable = map[models.Field]string{
	models.FieldTitle:                "title",
	models.FieldDescription:          "description",
	models.FieldCategory:             "category",
	models.FieldAssignedTo:           "assigned_to",
	models.FieldStatus:               "status",
	models.FieldPriority:             "priority",
	models.FieldApprovalStatus:       "approval_status",
	models.FieldNotes:                "notes",
	models.FieldCompletionPercentage: "completion_percentage",
	models.FieldDueDate:              "due_date",
}

// TaskRepository persists tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// List returns one page of tasks matching filter, newest first, with the total count.
func (r *TaskRepository) List(ctx context.Context, filter Filter, page models.Page) ([]models.Task, int, error) {
	where, args, err := filter.clause(taskColumns, nil)
	if err != nil {
		return nil, 0, err
	}
	exec := database.Conn(ctx, r.db)

	var total int
	if err := sqlx.GetContext(ctx, exec, &total, fmt.Sprintf("SELECT COUNT(*) FROM tasks t WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	listQuery := fmt.Sprintf("%s WHERE %s ORDER BY t.created_at DESC LIMIT %d OFFSET %d", taskSelect, where, page.Size, page.Offset())
	tasks := make([]models.Task, 0)
	if err := sqlx.SelectContext(ctx, exec, &tasks, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

// FindOne returns the single task matching filter or sql.ErrNoRows.
func (r *TaskRepository) FindOne(ctx context.Context, filter Filter) (*models.Task, error) {
	where, args, err := filter.clause(taskColumns, nil)
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &task, fmt.Sprintf("%s WHERE %s LIMIT 1", taskSelect, where), args...); err != nil {
		return nil, err
	}
	return &task, nil
}

// FindAll returns every task matching filter without paging.
func (r *TaskRepository) FindAll(ctx context.Context, filter Filter) ([]models.Task, error) {
	where, args, err := filter.clause(taskColumns, nil)
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &tasks, fmt.Sprintf("%s WHERE %s ORDER BY t.created_at", taskSelect, where), args...); err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	return tasks, nil
}

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	const query = `INSERT INTO tasks
	(id, title, description, category, created_by, assigned_to, status, priority, approval_status, completion_percentage, notes, due_date, created_at, updated_at)
	VALUES (:id, :title, :description, :category, :created_by, :assigned_to, :status, :priority, :approval_status, :completion_percentage, :notes, :due_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Update applies changes to every task matching filter and reports the affected row count.
func (r *TaskRepository) Update(ctx context.Context, filter Filter, changes models.Changes) (int64, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	set, args, err := assignments(taskSettable, changes, nil)
	if err != nil {
		return 0, err
	}
	args = append(args, time.Now().UTC())
	set = fmt.Sprintf("%s, updated_at = $%d", set, len(args))

	where, args, err := filter.clause(taskColumns, args)
	if err != nil {
		return 0, err
	}
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, fmt.Sprintf("UPDATE tasks AS t SET %s WHERE %s", set, where), args...)
	if err != nil {
		return 0, fmt.Errorf("update task: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes every task matching filter and reports the affected row count.
func (r *TaskRepository) Delete(ctx context.Context, filter Filter) (int64, error) {
	where, args, err := filter.clause(taskColumns, nil)
	if err != nil {
		return 0, err
	}
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, fmt.Sprintf("DELETE FROM tasks AS t WHERE %s", where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	return result.RowsAffected()
}
