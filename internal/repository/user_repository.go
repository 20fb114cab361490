package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/pkg/database"
)

const userSelect = `SELECT id, name, email, password_hash, role, department, active, last_login, created_at, updated_at FROM users`

// UserRepository provides read access to the user directory plus the few writes login needs.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &user, userSelect+` WHERE LOWER(email) = LOWER($1) LIMIT 1`, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &user, userSelect+` WHERE id = $1 LIMIT 1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ListIDsByDepartment returns the ids of active users in a department.
func (r *UserRepository) ListIDsByDepartment(ctx context.Context, department string) ([]string, error) {
	const query = `SELECT id FROM users WHERE department = $1 AND active = TRUE ORDER BY id`
	ids := make([]string, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &ids, query, department); err != nil {
		return nil, fmt.Errorf("list department members: %w", err)
	}
	return ids, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, name, email, password_hash, role, department, active, created_at, updated_at)
	VALUES (:id, :name, :email, :password_hash, :role, :department, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
