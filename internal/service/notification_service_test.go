package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

var notificationRowColumns = []string{"id", "user_id", "title", "message", "type", "related_id", "related_type", "is_read", "created_at", "read_at"}

func newInbox(t *testing.T) (*NotificationService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMock(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return svc, mock
}

func TestNotificationServiceListIsPinnedToRecipient(t *testing.T) {
	svc, mock := newInbox(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = $2 AND type = $3")).
		WithArgs("u-1", false, "task_assigned").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 10")).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow("n-1", "u-1", "Task assigned", "hi", "task_assigned", "t-1", "tasks", false, time.Now(), nil))

	items, pagination, err := svc.List(context.Background(), member("u-1", "Parks"), models.NotificationFilter{
		UnreadOnly: true, Type: models.NotificationTaskAssigned, Page: 2, PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, pagination.Page)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationServiceUnreadCount(t *testing.T) {
	svc, mock := newInbox(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = $2")).
		WithArgs("u-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := svc.UnreadCount(context.Background(), member("u-1", "Parks"))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	const update = "UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE user_id = $2 AND id = $3 AND is_read = $4"
	const exists = "SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND id = $2"
	readAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unread", func(t *testing.T) {
		svc, mock := newInbox(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WithArgs(readAt, "u-1", "n-1", false).WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, svc.MarkRead(context.Background(), member("u-1", "Parks"), "n-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already read", func(t *testing.T) {
		svc, mock := newInbox(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(exists)).WithArgs("u-1", "n-1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		require.NoError(t, svc.MarkRead(context.Background(), member("u-1", "Parks"), "n-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's", func(t *testing.T) {
		svc, mock := newInbox(t)
		mock.ExpectExec(regexp.QuoteMeta(update)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(exists)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		err := svc.MarkRead(context.Background(), member("u-2", "Parks"), "n-1")
		assert.True(t, errors.Is(err, appErrors.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	svc, mock := newInbox(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE user_id = $2 AND is_read = $3")).
		WithArgs(sqlmock.AnyArg(), "u-1", false).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := svc.MarkAllRead(context.Background(), member("u-1", "Parks"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)

	_, err = svc.MarkAllRead(context.Background(), nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
