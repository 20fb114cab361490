package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4/database/stub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func newStubMigrator(t *testing.T, dir string) (*Migrator, *stub.Stub) {
	t.Helper()
	driver, err := stub.WithInstance(nil, &stub.Config{})
	require.NoError(t, err)
	migrator, err := NewMigrator(dir, driver, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = migrator.Close() })
	return migrator, driver.(*stub.Stub)
}

func TestMigratorUpAndDown(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_users.up.sql", "CREATE TABLE users (id TEXT)")
	writeMigration(t, dir, "0001_users.down.sql", "DROP TABLE users")
	writeMigration(t, dir, "0002_requests.up.sql", "CREATE TABLE requests (id TEXT)")
	writeMigration(t, dir, "0002_requests.down.sql", "DROP TABLE requests")
	writeMigration(t, dir, "README.md", "ignored")

	migrator, db := newStubMigrator(t, dir)
	ctx := context.Background()

	status, err := migrator.Status()
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{}, status)

	status, err = migrator.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{Version: 2}, status)
	assert.Equal(t, []string{"CREATE TABLE users (id TEXT)", "CREATE TABLE requests (id TEXT)"}, db.MigrationSequence)

	status, err = migrator.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), status.Version)
	assert.Len(t, db.MigrationSequence, 2)

	status, err = migrator.Down(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{Version: 1}, status)
	assert.Equal(t, "DROP TABLE requests", db.MigrationSequence[len(db.MigrationSequence)-1])

	status, err = migrator.Down(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{}, status)
	assert.Equal(t, "DROP TABLE users", db.MigrationSequence[len(db.MigrationSequence)-1])
}

func TestMigratorShippedMigrationsPair(t *testing.T) {
	migrator, db := newStubMigrator(t, filepath.Join("..", "..", "migrations"))

	status, err := migrator.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)

	_, err = migrator.Down(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, db.MigrationSequence, 2)
	assert.Contains(t, db.MigrationSequence[1], "DROP TABLE")
}

func TestNewMigratorMissingDirectory(t *testing.T) {
	driver, err := stub.WithInstance(nil, &stub.Config{})
	require.NoError(t, err)

	_, err = NewMigrator(filepath.Join(t.TempDir(), "missing"), driver, nil)
	require.Error(t, err)
}
