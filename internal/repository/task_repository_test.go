package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-workflow-api/internal/models"
)

var taskRowColumns = []string{"id", "title", "description", "category", "created_by", "assigned_to", "status", "priority",
	"approval_status", "completion_percentage", "notes", "due_date", "created_at", "updated_at", "creator_name", "assignee_name"}

func TestTaskRepositoryFindOneWithParticipantScope(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTaskRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.id = $1 AND (t.created_by = $2 OR t.assigned_to = $3) LIMIT 1")).
		WithArgs("task-1", "user-2", "user-2").
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("task-1", "Inspect", "", "field", "user-1", "user-2", "PENDING", "HIGH", "PENDING", 0, "", nil, now, now, "Creator", "Assignee"))

	filter := Where(Eq("id", "task-1"), AnyOf(Eq("created_by", "user-2"), Eq("assigned_to", "user-2")))
	task, err := repo.FindOne(context.Background(), filter)
	require.NoError(t, err)
	require.Equal(t, "user-2", task.Assignee())
	require.Equal(t, "Creator", *task.CreatorName)
	require.Nil(t, task.DueDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryCreateUpdateDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTaskRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).WillReturnResult(sqlmock.NewResult(1, 1))
	task := &models.Task{Title: "Inspect", CreatedBy: "user-1", Status: models.TaskStatusPending}
	require.NoError(t, repo.Create(context.Background(), task))
	require.NotEmpty(t, task.ID)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks AS t SET assigned_to = $1, status = $2, updated_at = $3 WHERE t.id = $4")).
		WithArgs(nil, "IN_PROGRESS", sqlmock.AnyArg(), task.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err := repo.Update(context.Background(), Where(Eq("id", task.ID)), models.Changes{
		models.FieldStatus:     "IN_PROGRESS",
		models.FieldAssignedTo: nil,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	affected, err = repo.Update(context.Background(), Where(Eq("id", task.ID)), nil)
	require.NoError(t, err)
	require.Zero(t, affected)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tasks AS t WHERE t.id = $1")).
		WithArgs(task.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err = repo.Delete(context.Background(), Where(Eq("id", task.ID)))
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryFindAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTaskRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.id = ANY($1) ORDER BY t.created_at")).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("task-1", "A", "", "", "user-1", nil, "PENDING", "LOW", "PENDING", 0, "", nil, now, now, "Creator", nil).
			AddRow("task-2", "B", "", "", "user-1", "user-3", "PENDING", "LOW", "PENDING", 10, "", now, now, now, "Creator", "Other"))

	tasks, err := repo.FindAll(context.Background(), Where(In("id", []string{"task-1", "task-2"})))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "", tasks[0].Assignee())
	require.NotNil(t, tasks[1].DueDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
