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

func TestNotificationRepositoryCreateAndCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))
	relatedID, relatedType := "req-1", models.EntityRequests
	n := &models.Notification{UserID: "user-2", Title: "New request", Type: models.NotificationRequest, RelatedID: &relatedID, RelatedType: &relatedType}
	require.NoError(t, repo.Create(context.Background(), n))
	require.NotEmpty(t, n.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = $2")).
		WithArgs("user-2", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := repo.Count(context.Background(), Where(Eq("user_id", "user-2"), Eq("is_read", false)))
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadScopesToRecipient(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE id = $2 AND user_id = $3 AND is_read = $4")).
		WithArgs(at, "n-1", "user-2", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.MarkRead(context.Background(), Where(Eq("id", "n-1"), Eq("user_id", "user-2")), at)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}
