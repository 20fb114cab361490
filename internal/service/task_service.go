package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type taskStore interface {
	List(ctx context.Context, filter repository.Filter, page models.Page) ([]models.Task, int, error)
	FindOne(ctx context.Context, filter repository.Filter) (*models.Task, error)
	FindAll(ctx context.Context, filter repository.Filter) ([]models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, filter repository.Filter, changes models.Changes) (int64, error)
	Delete(ctx context.Context, filter repository.Filter) (int64, error)
}

// unassignedFilter selects tasks without an assignee when passed as the assigned_to filter.
const unassignedFilter = "none"

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateTaskInput is the payload for creating a task.
type CreateTaskInput struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	Category    string     `json:"category" validate:"max=100"`
	AssignedTo  string     `json:"assigned_to"`
	Priority    string     `json:"priority" validate:"omitempty,task_priority"`
	Notes       string     `json:"notes"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateTaskInput carries the fields a caller wants to change. An empty AssignedTo unassigns the task.
type UpdateTaskInput struct {
	Title                *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description          *string    `json:"description"`
	Category             *string    `json:"category" validate:"omitempty,max=100"`
	AssignedTo           *string    `json:"assigned_to"`
	Status               *string    `json:"status" validate:"omitempty,task_status"`
	Priority             *string    `json:"priority" validate:"omitempty,task_priority"`
	ApprovalStatus       *string    `json:"approval_status" validate:"omitempty,approval_status"`
	Notes                *string    `json:"notes"`
	CompletionPercentage *int       `json:"completion_percentage" validate:"omitempty,min=0,max=100"`
	DueDate              *time.Time `json:"due_date"`
}

func (in UpdateTaskInput) changes() models.Changes {
	changes := models.Changes{}
	text := func(f models.Field, v *string) {
		if v != nil {
			changes[f] = strings.TrimSpace(*v)
		}
	}
	enum := func(f models.Field, v *string) {
		if v != nil {
			changes[f] = strings.ToUpper(strings.TrimSpace(*v))
		}
	}
	text(models.FieldTitle, in.Title)
	text(models.FieldDescription, in.Description)
	text(models.FieldCategory, in.Category)
	text(models.FieldNotes, in.Notes)
	enum(models.FieldStatus, in.Status)
	enum(models.FieldPriority, in.Priority)
	enum(models.FieldApprovalStatus, in.ApprovalStatus)
	if in.AssignedTo != nil {
		if id := strings.TrimSpace(*in.AssignedTo); id != "" {
			changes[models.FieldAssignedTo] = id
		} else {
			changes[models.FieldAssignedTo] = nil
		}
	}
	if in.CompletionPercentage != nil {
		changes[models.FieldCompletionPercentage] = *in.CompletionPercentage
	}
	if in.DueDate != nil {
		changes[models.FieldDueDate] = in.DueDate.UTC()
	}
	return changes
}

// UpdateTaskApprovalInput records a review decision.
type UpdateTaskApprovalInput struct {
	ApprovalStatus string `json:"approval_status" validate:"required,approval_status"`
}

// TaskService implements the task workflow. Visibility follows the actor's scope; changes follow the
// actor's relationship to the task.
type TaskService struct {
	tasks     taskStore
	users     userLookup
	scope     *AccessScopeResolver
	audit     *AuditLogger
	notifier  *NotificationDispatcher
	effects   *SideEffects
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskService constructs the service.
func NewTaskService(
	tasks taskStore,
	users userLookup,
	scope *AccessScopeResolver,
	audit *AuditLogger,
	notifier *NotificationDispatcher,
	effects *SideEffects,
	validate *validator.Validate,
	logger *zap.Logger,
) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if effects == nil {
		effects = NewSideEffects(logger, nil)
	}
	return &TaskService{
		tasks:     tasks,
		users:     users,
		scope:     scope,
		audit:     audit,
		notifier:  notifier,
		effects:   effects,
		validator: registerWorkflowValidations(validate),
		logger:    logger,
	}
}

// List returns the tasks visible to the actor.
func (s *TaskService) List(ctx context.Context, actor *models.Actor, query models.TaskFilter) ([]models.Task, *models.Pagination, error) {
	scope, err := s.scope.ResolveTaskScope(actor)
	if err != nil {
		return nil, nil, err
	}
	filter := scope.Filter()
	if len(query.Status) > 0 {
		values := make([]string, 0, len(query.Status))
		for _, status := range query.Status {
			status = models.TaskStatus(strings.ToUpper(string(status)))
			if !status.Valid() {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
			}
			values = append(values, string(status))
		}
		filter = filter.And(repository.In("status", values))
	}
	if len(query.Priority) > 0 {
		values := make([]string, 0, len(query.Priority))
		for _, priority := range query.Priority {
			priority = models.TaskPriority(strings.ToUpper(string(priority)))
			if !priority.Valid() {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", priority))
			}
			values = append(values, string(priority))
		}
		filter = filter.And(repository.In("priority", values))
	}
	if approval := strings.ToUpper(strings.TrimSpace(query.ApprovalStatus)); approval != "" {
		if !models.ApprovalStatus(approval).Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown approval status %q", approval))
		}
		filter = filter.And(repository.Eq("approval_status", approval))
	}
	if category := strings.TrimSpace(query.Category); category != "" {
		filter = filter.And(repository.Eq("category", category))
	}
	switch assignee := strings.TrimSpace(query.AssignedTo); {
	case strings.EqualFold(assignee, unassignedFilter):
		filter = filter.And(repository.IsNull("assigned_to"))
	case assignee != "":
		filter = filter.And(repository.Eq("assigned_to", assignee))
	}
	filter = filter.And(repository.Search(query.Search, "title", "description", "notes", "category")...)

	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.tasks.List(ctx, filter, page)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list tasks")
	}
	return items, models.NewPagination(page.Number, page.Size, total), nil
}

// Get returns one task inside the actor's scope.
func (s *TaskService) Get(ctx context.Context, actor *models.Actor, id string) (*models.Task, error) {
	scope, err := s.scope.ResolveTaskScope(actor)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, scope.Filter(), id)
}

// Create registers a task owned by the actor.
func (s *TaskService) Create(ctx context.Context, actor *models.Actor, input CreateTaskInput) (*models.Task, error) {
	if _, err := s.scope.ResolveTaskScope(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}

	priority := models.TaskPriority(strings.ToUpper(strings.TrimSpace(input.Priority)))
	if priority == "" {
		priority = models.TaskPriorityNormal
	}
	task := &models.Task{
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Category:       strings.TrimSpace(input.Category),
		CreatedBy:      actor.ID,
		Status:         models.TaskStatusPending,
		Priority:       priority,
		ApprovalStatus: models.ApprovalPending,
		Notes:          input.Notes,
	}
	if input.DueDate != nil {
		due := input.DueDate.UTC()
		task.DueDate = &due
	}
	if assignee := strings.TrimSpace(input.AssignedTo); assignee != "" {
		user, err := s.assignee(ctx, assignee)
		if err != nil {
			return nil, err
		}
		task.AssignedTo = &assignee
		task.AssigneeName = &user.Name
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Internal(err, "failed to create task")
	}
	if actor.Name != "" {
		name := actor.Name
		task.CreatorName = &name
	}

	s.audit.Log(ctx, ActivityRecord{
		Actor:       actor,
		Action:      models.ActionCreate,
		EntityType:  models.EntityTasks,
		EntityID:    task.ID,
		Description: fmt.Sprintf("Created task %q", task.Title),
		New:         task.Summary(),
	})
	created := *task
	s.effects.Go(ctx, "notify.task_created", func(ctx context.Context) error {
		return s.notifier.TaskCreated(ctx, actor, &created).Err()
	})
	return task, nil
}

// Update changes the fields the actor's relationship to the task allows. Other fields are dropped.
func (s *TaskService) Update(ctx context.Context, actor *models.Actor, id string, input UpdateTaskInput) (*models.Task, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}
	return s.update(ctx, actor, id, input.changes())
}

// UpdateApproval records an approval decision on the task.
func (s *TaskService) UpdateApproval(ctx context.Context, actor *models.Actor, id string, input UpdateTaskApprovalInput) (*models.Task, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}
	changes := models.Changes{models.FieldApprovalStatus: strings.ToUpper(strings.TrimSpace(input.ApprovalStatus))}
	return s.update(ctx, actor, id, changes)
}

func (s *TaskService) update(ctx context.Context, actor *models.Actor, id string, changes models.Changes) (*models.Task, error) {
	scope, err := s.scope.ResolveTaskScope(actor)
	if err != nil {
		return nil, err
	}
	before, err := s.load(ctx, scope.Filter(), id)
	if err != nil {
		return nil, err
	}
	allowed, err := s.scope.TaskMutableFields(actor, before)
	if err != nil {
		return nil, err
	}

	for field, value := range changes {
		if before.Value(field) == value {
			delete(changes, field)
		}
	}
	changes, dropped := changes.Restrict(allowed)
	if len(dropped) > 0 {
		s.logger.Debug("dropped task fields outside actor relationship",
			requestIDField(ctx), zap.String("task", id), zap.Any("fields", dropped))
	}
	if len(changes) == 0 {
		return before, nil
	}
	if assignee, ok := changes[models.FieldAssignedTo].(string); ok {
		if _, err := s.assignee(ctx, assignee); err != nil {
			return nil, err
		}
	}

	affected, err := s.tasks.Update(ctx, scope.Filter().And(repository.Eq("id", id)), changes)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update task")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	after, err := s.load(ctx, repository.Where(), id)
	if err != nil {
		return nil, err
	}

	fields := make([]models.Field, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	s.audit.Log(ctx, ActivityRecord{
		Actor:       actor,
		Action:      models.ActionUpdate,
		EntityType:  models.EntityTasks,
		EntityID:    id,
		Description: fmt.Sprintf("Updated task %q", after.Title),
		Old:         pick(before.Snapshot(), fields),
		New:         pick(after.Snapshot(), fields),
	})

	prev, next := *before, *after
	if _, approval := changes[models.FieldApprovalStatus]; approval {
		s.effects.Go(ctx, "notify.task_approval", func(ctx context.Context) error {
			return s.notifier.TaskApprovalChanged(ctx, actor, &prev, &next).Err()
		})
		delete(changes, models.FieldApprovalStatus)
	}
	if len(changes) > 0 {
		s.effects.Go(ctx, "notify.task_updated", func(ctx context.Context) error {
			return s.notifier.TaskUpdated(ctx, actor, &prev, &next).Err()
		})
	}
	return after, nil
}

// Delete removes a task. Only its creator may delete it.
func (s *TaskService) Delete(ctx context.Context, actor *models.Actor, id string) error {
	scope, err := s.scope.ResolveTaskScope(actor)
	if err != nil {
		return err
	}
	before, err := s.load(ctx, scope.Filter(), id)
	if err != nil {
		return err
	}
	if before.CreatedBy != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the creator can delete this task")
	}
	return s.remove(ctx, actor, before)
}

// BulkDelete removes every listed task or none. Every id must be visible to and created by the actor
// before anything is removed.
func (s *TaskService) BulkDelete(ctx context.Context, actor *models.Actor, input BulkDeleteInput) (*BulkDeleteResult, error) {
	scope, err := s.scope.ResolveTaskScope(actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}
	ids := uniqueIDs(input.IDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids are required")
	}

	tasks, err := s.tasks.FindAll(ctx, scope.Filter().And(repository.In("id", ids)))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to verify tasks")
	}
	if len(tasks) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more tasks were not found")
	}
	for _, task := range tasks {
		if task.CreatedBy != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator can delete a task")
		}
	}

	result := &BulkDeleteResult{Deleted: make([]string, 0, len(tasks))}
	for i := range tasks {
		task := tasks[i]
		if err := s.remove(ctx, actor, &task); err != nil {
			s.logger.Warn("bulk delete row failed", requestIDField(ctx), zap.String("task", task.ID), zap.Error(err))
			result.Failed = append(result.Failed, BulkDeleteFailure{ID: task.ID, Error: appErrors.FromError(err).Message})
			continue
		}
		result.Deleted = append(result.Deleted, task.ID)
	}
	return result, nil
}

func (s *TaskService) remove(ctx context.Context, actor *models.Actor, before *models.Task) error {
	affected, err := s.tasks.Delete(ctx, repository.Where(
		repository.Eq("id", before.ID),
		repository.Eq("created_by", actor.ID),
	))
	if err != nil {
		return appErrors.Internal(err, "failed to delete task")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}

	s.audit.Log(ctx, ActivityRecord{
		Actor:       actor,
		Action:      models.ActionDelete,
		EntityType:  models.EntityTasks,
		EntityID:    before.ID,
		Description: fmt.Sprintf("Deleted task %q", before.Title),
		Old:         before.Snapshot(),
	})
	removed := *before
	s.effects.Go(ctx, "notify.task_deleted", func(ctx context.Context) error {
		return s.notifier.TaskDeleted(ctx, actor, &removed).Err()
	})
	return nil
}

func (s *TaskService) assignee(ctx context.Context, id string) (*models.User, error) {
	if s.users == nil {
		return &models.User{ID: id}, nil
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignee not found")
		}
		return nil, appErrors.Internal(err, "failed to load assignee")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee is inactive")
	}
	return user, nil
}

func (s *TaskService) load(ctx context.Context, scope repository.Filter, id string) (*models.Task, error) {
	task, err := s.tasks.FindOne(ctx, scope.And(repository.Eq("id", id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Internal(err, "failed to load task")
	}
	return task, nil
}
