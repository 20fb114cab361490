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

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1)")).
		WithArgs("ayse@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "department", "active", "last_login", "created_at", "updated_at"}).
			AddRow("user-1", "Ayse", "ayse@example.com", "hash", "member", "Parks", true, nil, now, now))

	user, err := repo.FindByEmail(context.Background(), "ayse@example.com")
	require.NoError(t, err)
	require.Equal(t, "Parks", user.Department)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDirectoryLookups(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE department = $1 AND active = TRUE")).
		WithArgs("Parks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1").AddRow("user-2"))
	ids, err := repo.ListIDsByDepartment(context.Background(), "Parks")
	require.NoError(t, err)
	require.Equal(t, []string{"user-1", "user-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAssignsIdentity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, name, email, password_hash, role, department, active, created_at, updated_at)")).
		WithArgs(sqlmock.AnyArg(), "Ayse", "ayse@example.com", "hash", "member", "Parks", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Name: "Ayse", Email: "ayse@example.com", PasswordHash: "hash", Role: models.RoleMember, Department: "Parks", Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	require.NotEmpty(t, user.ID)
	require.False(t, user.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
