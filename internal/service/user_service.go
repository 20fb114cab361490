package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type userProvisionStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type membershipCache interface {
	Forget(ctx context.Context, department string)
}

// CreateUserInput is the payload for provisioning a staff account.
type CreateUserInput struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Role       string `json:"role" validate:"required,user_role"`
	Department string `json:"department" validate:"max=100"`
}

// UserService provisions accounts.
type UserService struct {
	repo      userProvisionStore
	directory membershipCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService. directory may be nil.
func NewUserService(repo userProvisionStore, directory membershipCache, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, directory: directory, validator: registerWorkflowValidations(validate), logger: logger}
}

// Create adds an active user and drops the cached membership of its department.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Department = strings.TrimSpace(input.Department)
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}
	role := models.UserRole(strings.ToLower(input.Role))
	if role == models.RoleMember && input.Department == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "members need a department")
	}

	if _, err := s.repo.FindByEmail(ctx, input.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         role,
		Department:   input.Department,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	if s.directory != nil && user.Department != "" {
		s.directory.Forget(ctx, user.Department)
	}
	s.logger.Info("user provisioned", zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.String("department", user.Department))
	return user, nil
}
