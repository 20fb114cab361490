package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/pkg/config"
)

// MigrationStatus is the schema version recorded in schema_migrations. Version 0 means nothing is applied.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrator applies the NNNN_name.up.sql and NNNN_name.down.sql files of one directory.
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// NewMigrator reads migrations from dir and tracks progress through driver.
func NewMigrator(dir string, driver migratedb.Driver, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations from %s: %w", dir, err)
	}
	m.Log = migrateLogger{sugar: logger.Sugar()}
	return &Migrator{m: m, logger: logger}, nil
}

// OpenMigrator connects with its own pool so closing the migrator never touches the serving pool.
func OpenMigrator(ctx context.Context, cfg config.DatabaseConfig, dir string, logger *zap.Logger) (*Migrator, error) {
	db, err := NewPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init migration driver: %w", err)
	}
	migrator, err := NewMigrator(dir, driver, logger)
	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	return migrator, nil
}

// Migrate applies every pending up migration in dir and reports the resulting version.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, dir string, logger *zap.Logger) (MigrationStatus, error) {
	migrator, err := OpenMigrator(ctx, cfg, dir, logger)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer migrator.Close() //nolint:errcheck
	return migrator.Up(ctx)
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up(ctx context.Context) (MigrationStatus, error) {
	if err := m.run(ctx, m.m.Up); err != nil {
		return m.statusAfter(fmt.Errorf("migrate up: %w", err))
	}
	return m.Status()
}

// Down reverts the last steps migrations, or all of them when steps is not positive.
func (m *Migrator) Down(ctx context.Context, steps int) (MigrationStatus, error) {
	fn := m.m.Down
	if steps > 0 {
		fn = func() error { return m.m.Steps(-steps) }
	}
	if err := m.run(ctx, fn); err != nil {
		return m.statusAfter(fmt.Errorf("migrate down: %w", err))
	}
	return m.Status()
}

// Status reports the applied version.
func (m *Migrator) Status() (MigrationStatus, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

// Close releases the source and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// run stops the migration between files once ctx is cancelled.
func (m *Migrator) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.m.GracefulStop <- true
		case <-done:
		}
	}()

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("schema already at target version")
		return nil
	}
	return err
}

func (m *Migrator) statusAfter(err error) (MigrationStatus, error) {
	status, statusErr := m.Status()
	if statusErr != nil {
		return MigrationStatus{}, errors.Join(err, statusErr)
	}
	return status, err
}

type migrateLogger struct {
	sugar *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return false
}
