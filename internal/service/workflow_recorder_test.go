package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

func TestWorkflowRecorderAppendsTransition(t *testing.T) {
	db, mock := newSQLMock(t)
	metrics := NewMetricsService()
	recorder := NewWorkflowRecorder(repository.NewStatusHistoryRepository(db), metrics, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_status_history")).
		WithArgs(sqlmock.AnyArg(), "r-1", "NORMAL", "URGENT", "u-1", "Parks", "needs crew", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry, err := recorder.RecordTransition(context.Background(), "r-1", models.RequestStatusNormal, models.RequestStatusUrgent, member("u-1", "Parks"), "  needs crew ")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, entry.Comment)
	assert.Equal(t, "needs crew", *entry.Comment)
	require.NotNil(t, entry.UpdatedByName)
	assert.Equal(t, "User u-1", *entry.UpdatedByName)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.statusTransitions.WithLabelValues("NORMAL", "URGENT")))
}

func TestWorkflowRecorderReportsInconsistentState(t *testing.T) {
	db, mock := newSQLMock(t)
	recorder := NewWorkflowRecorder(repository.NewStatusHistoryRepository(db), nil, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_status_history")).
		WillReturnError(errors.New("relation does not exist"))

	_, err := recorder.RecordTransition(context.Background(), "r-1", models.RequestStatusNormal, models.RequestStatusCompleted, member("u-1", "Parks"), "")
	assert.True(t, errors.Is(err, appErrors.ErrInconsistentState))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRecorderRequiresActor(t *testing.T) {
	recorder := NewWorkflowRecorder(nil, nil, nil)
	_, err := recorder.RecordTransition(context.Background(), "r-1", models.RequestStatusNormal, models.RequestStatusLow, nil, "")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestWorkflowRecorderHistoryOldestFirst(t *testing.T) {
	db, mock := newSQLMock(t)
	recorder := NewWorkflowRecorder(repository.NewStatusHistoryRepository(db), nil, zap.NewNop())
	first := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE h.request_id = $1")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "old_status", "new_status", "updated_by", "updated_by_department", "comment", "created_at", "updated_by_name"}).
			AddRow("h-1", "r-1", "NORMAL", "URGENT", "u-1", "Parks", nil, first, "User u-1").
			AddRow("h-2", "r-1", "URGENT", "COMPLETED", "u-2", "Parks", "done", first.Add(time.Hour), nil))

	entries, err := recorder.History(context.Background(), "r-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.RequestStatusCompleted, entries[1].NewStatus)
	assert.Nil(t, entries[0].Comment)
	require.NoError(t, mock.ExpectationsWereMet())
}
