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
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

var activityRowColumns = []string{"id", "user_id", "user_name", "user_email", "action", "entity_type", "entity_id", "description",
	"old_values", "new_values", "ip_address", "user_agent", "created_at"}

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/118.0"

func TestAuditLoggerRecordsOriginAndActor(t *testing.T) {
	store := &activityStoreStub{}
	audit := NewAuditLogger(store, NewAccessScopeResolver(executiveDepartment), nil, zap.NewNop())
	ctx := models.ContextWithOrigin(context.Background(), models.Origin{IPAddress: "10.0.0.7", UserAgent: firefoxUA})

	audit.Log(ctx, ActivityRecord{
		Actor:      member("u-1", "Parks"),
		Action:     models.ActionUpdate,
		EntityType: models.EntityRequests,
		EntityID:   "r-1",
		Old:        models.Snapshot{"status": "NORMAL"},
		New:        models.Snapshot{"status": "URGENT"},
	})

	logs := store.logged()
	require.Len(t, logs, 1)
	entry := logs[0]
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)
	assert.Equal(t, "u-1@example.com", entry.UserEmail)
	assert.Equal(t, "10.0.0.7", entry.IPAddress)
	assert.Equal(t, firefoxUA, entry.UserAgent)
	assert.Equal(t, models.Snapshot{"status": "URGENT"}, entry.NewValues)
}

func TestAuditLoggerFailureNeverReachesCaller(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)
	store := &activityStoreStub{err: errors.New("disk full")}
	audit := NewAuditLogger(store, nil, NewSideEffects(logger, nil), logger)

	assert.NotPanics(t, func() {
		audit.Log(context.Background(), ActivityRecord{Actor: member("u-1", "Parks"), Action: models.ActionDelete, EntityType: models.EntityTasks})
	})
	entries := logs.FilterMessage("side effect failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit.delete", entries[0].ContextMap()["kind"])
}

func TestAuditLoggerListScopesMembersToOwnEntries(t *testing.T) {
	db, mock := newSQLMock(t)
	audit := NewAuditLogger(repository.NewActivityLogRepository(db), NewAccessScopeResolver(executiveDepartment), nil, zap.NewNop())
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activity_logs WHERE user_id = $1 AND action = $2")).
		WithArgs("u-1", "UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(activityRowColumns).AddRow(
			"log-1", "u-1", "User u-1", "u-1@example.com", "UPDATE", "requests", "r-1", "Updated",
			nil, []byte(`{"status":"URGENT"}`), "10.0.0.7", firefoxUA, created,
		))

	entries, pagination, err := audit.List(context.Background(), member("u-1", "Parks"), models.ActivityFilter{Action: "update"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, entries, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Nil(t, entries[0].OldValues)
	assert.Equal(t, "URGENT", entries[0].NewValues["status"])
	require.NotNil(t, entries[0].Client)
	assert.Equal(t, "Firefox", entries[0].Client.Browser)
	assert.False(t, entries[0].Client.Bot)
}

func TestAuditLoggerListRejectsUnknownAction(t *testing.T) {
	audit := NewAuditLogger(&activityStoreStub{}, nil, nil, zap.NewNop())
	_, _, err := audit.List(context.Background(), member("u-1", "Parks"), models.ActivityFilter{Action: "PURGE"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = audit.List(context.Background(), nil, models.ActivityFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuditLoggerGetHonoursReadScope(t *testing.T) {
	db, mock := newSQLMock(t)
	audit := NewAuditLogger(repository.NewActivityLogRepository(db), NewAccessScopeResolver(executiveDepartment), nil, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_logs WHERE user_id = $1 AND id = $2 LIMIT 1")).
		WithArgs("u-2", "log-1").
		WillReturnRows(sqlmock.NewRows(activityRowColumns))

	_, err := audit.Get(context.Background(), member("u-2", "Parks"), "log-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	chief := member("u-3", executiveDepartment)
	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_logs WHERE id = $1 LIMIT 1")).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows(activityRowColumns).AddRow(
			"log-1", nil, "", "", "DELETE", "tasks", "t-1", "Deleted", []byte(`{"title":"Mow"}`), nil, "", "", time.Now(),
		))
	entry, err := audit.Get(context.Background(), chief, "log-1")
	require.NoError(t, err)
	assert.Nil(t, entry.UserID)
	assert.Nil(t, entry.Client)
	require.NoError(t, mock.ExpectationsWereMet())
}
