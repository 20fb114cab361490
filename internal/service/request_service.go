package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type requestStore interface {
	List(ctx context.Context, filter repository.Filter, page models.Page) ([]models.Request, int, error)
	FindOne(ctx context.Context, filter repository.Filter) (*models.Request, error)
	ListIDs(ctx context.Context, filter repository.Filter) ([]string, error)
	LockStatus(ctx context.Context, filter repository.Filter) (models.RequestStatus, error)
	Create(ctx context.Context, request *models.Request) error
	Update(ctx context.Context, filter repository.Filter, changes models.Changes) (int64, error)
	Delete(ctx context.Context, filter repository.Filter) (int64, error)
}

// errAlreadyApplied aborts an update whose only change was made concurrently by someone else.
var errAlreadyApplied = errors.New("request already in requested state")

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CreateRequestInput is the payload for opening a request.
type CreateRequestInput struct {
	Department     string `json:"department"`
	Name           string `json:"name" validate:"required,max=255"`
	IdentityNumber string `json:"identity_number" validate:"required,identity_number"`
	Phone          string `json:"phone" validate:"omitempty,max=32"`
	Email          string `json:"email" validate:"omitempty,email"`
	Address        string `json:"address"`
	Type           string `json:"type" validate:"required,max=100"`
	Title          string `json:"title" validate:"required,max=255"`
	Description    string `json:"description"`
	Status         string `json:"status" validate:"omitempty,request_status"`
}

// UpdateRequestInput carries the fields a caller wants to change. Nil fields are left untouched.
type UpdateRequestInput struct {
	Department     *string `json:"department" validate:"omitempty,min=1"`
	Name           *string `json:"name" validate:"omitempty,min=1,max=255"`
	IdentityNumber *string `json:"identity_number" validate:"omitempty,identity_number"`
	Phone          *string `json:"phone" validate:"omitempty,max=32"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Address        *string `json:"address"`
	Type           *string `json:"type" validate:"omitempty,min=1,max=100"`
	Title          *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description    *string `json:"description"`
	Status         *string `json:"status" validate:"omitempty,request_status"`
	Comment        string  `json:"comment" validate:"max=1000"`
}

func (in UpdateRequestInput) changes() models.Changes {
	changes := models.Changes{}
	set := func(f models.Field, v *string) {
		if v != nil {
			changes[f] = strings.TrimSpace(*v)
		}
	}
	set(models.FieldDepartment, in.Department)
	set(models.FieldName, in.Name)
	set(models.FieldIdentityNumber, in.IdentityNumber)
	set(models.FieldPhone, in.Phone)
	set(models.FieldEmail, in.Email)
	set(models.FieldAddress, in.Address)
	set(models.FieldType, in.Type)
	set(models.FieldTitle, in.Title)
	set(models.FieldDescription, in.Description)
	if in.Status != nil {
		changes[models.FieldStatus] = strings.ToUpper(strings.TrimSpace(*in.Status))
	}
	return changes
}

// UpdateRequestStatusInput moves a request to a new status with an optional comment.
type UpdateRequestStatusInput struct {
	Status  string `json:"status" validate:"required,request_status"`
	Comment string `json:"comment" validate:"max=1000"`
}

// BulkDeleteInput lists the ids to remove.
type BulkDeleteInput struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// BulkDeleteFailure reports one row that could not be removed after the scope check passed.
type BulkDeleteFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkDeleteResult summarises a bulk delete.
type BulkDeleteResult struct {
	Deleted []string            `json:"deleted"`
	Failed  []BulkDeleteFailure `json:"failed,omitempty"`
}

// RequestService implements the request workflow: scoped reads, field-restricted updates, status history,
// audit and notifications.
type RequestService struct {
	requests  requestStore
	tx        txRunner
	scope     *AccessScopeResolver
	recorder  *WorkflowRecorder
	audit     *AuditLogger
	notifier  *NotificationDispatcher
	effects   *SideEffects
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(
	requests requestStore,
	tx txRunner,
	scope *AccessScopeResolver,
	recorder *WorkflowRecorder,
	audit *AuditLogger,
	notifier *NotificationDispatcher,
	effects *SideEffects,
	validate *validator.Validate,
	logger *zap.Logger,
) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if effects == nil {
		effects = NewSideEffects(logger, nil)
	}
	return &RequestService{
		requests:  requests,
		tx:        tx,
		scope:     scope,
		recorder:  recorder,
		audit:     audit,
		notifier:  notifier,
		effects:   effects,
		validator: registerWorkflowValidations(validate),
		logger:    logger,
	}
}

// List returns the requests visible to the actor.
func (s *RequestService) List(ctx context.Context, actor *models.Actor, query models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	scope, err := s.scope.ResolveRequestScope(actor)
	if err != nil {
		return nil, nil, err
	}
	filter := scope.Filter()
	if len(query.Status) > 0 {
		statuses := make([]string, 0, len(query.Status))
		for _, status := range query.Status {
			status = models.RequestStatus(strings.ToUpper(string(status)))
			if !status.Valid() {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
			}
			statuses = append(statuses, string(status))
		}
		filter = filter.And(repository.In("status", statuses))
	}
	if dept := strings.TrimSpace(query.Department); dept != "" {
		filter = filter.And(repository.Eq("department", dept))
	}
	if typ := strings.TrimSpace(query.Type); typ != "" {
		filter = filter.And(repository.Eq("type", typ))
	}
	filter = filter.And(repository.Search(query.Search, "title", "name", "description", "email")...)

	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.requests.List(ctx, filter, page)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list requests")
	}
	return items, models.NewPagination(page.Number, page.Size, total), nil
}

// Get returns one request inside the actor's scope.
func (s *RequestService) Get(ctx context.Context, actor *models.Actor, id string) (*models.Request, error) {
	scope, err := s.scope.ResolveRequestScope(actor)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, scope.Filter(), id)
}

// Create opens a request. Non-privileged actors may only file into their own department.
func (s *RequestService) Create(ctx context.Context, actor *models.Actor, input CreateRequestInput) (*models.Request, error) {
	scope, err := s.scope.ResolveRequestScope(actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}

	department := strings.TrimSpace(input.Department)
	switch {
	case !scope.Unrestricted && department == "":
		department = actor.Department
	case !scope.Unrestricted && department != actor.Department:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "requests can only be filed for your own department")
	case department == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}

	status := models.RequestStatus(strings.ToUpper(strings.TrimSpace(input.Status)))
	if status == "" {
		status = models.RequestStatusNormal
	}
	request := &models.Request{
		UserID:         actor.ID,
		Department:     department,
		Name:           strings.TrimSpace(input.Name),
		IdentityNumber: input.IdentityNumber,
		Phone:          strings.TrimSpace(input.Phone),
		Email:          strings.TrimSpace(input.Email),
		Address:        strings.TrimSpace(input.Address),
		Type:           strings.TrimSpace(input.Type),
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Status:         status,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Internal(err, "failed to create request")
	}
	if actor.Name != "" {
		name := actor.Name
		request.SubmitterName = &name
	}

	s.audit.Log(ctx, ActivityRecord{
		Actor:       actor,
		Action:      models.ActionCreate,
		EntityType:  models.EntityRequests,
		EntityID:    request.ID,
		Description: fmt.Sprintf("Created request %q", request.Title),
		New:         request.Summary(),
	})
	created := *request
	s.effects.Go(ctx, "notify.request_created", func(ctx context.Context) error {
		return s.notifier.RequestCreated(ctx, actor, &created).Err()
	})
	return request, nil
}

// Update changes the fields the actor may change. A department change by a non-privileged actor is refused;
// other disallowed fields are dropped.
func (s *RequestService) Update(ctx context.Context, actor *models.Actor, id string, input UpdateRequestInput) (*models.Request, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}
	return s.update(ctx, actor, id, input.changes(), input.Comment)
}

// UpdateStatus moves the request to a new status and records the transition.
func (s *RequestService) UpdateStatus(ctx context.Context, actor *models.Actor, id string, input UpdateRequestStatusInput) (*models.Request, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalidPayload(err)
	}
	changes := models.Changes{models.FieldStatus: strings.ToUpper(strings.TrimSpace(input.Status))}
	return s.update(ctx, actor, id, changes, input.Comment)
}

func (s *RequestService) update(ctx context.Context, actor *models.Actor, id string, changes models.Changes, comment string) (*models.Request, error) {
	scope, err := s.scope.ResolveRequestScope(actor)
	if err != nil {
		return nil, err
	}
	filter := scope.Filter().And(repository.Eq("id", id))
	before, err := s.load(ctx, scope.Filter(), id)
	if err != nil {
		return nil, err
	}

	for field, value := range changes {
		if before.Value(field) == value {
			delete(changes, field)
		}
	}
	allowed := s.scope.RequestMutableFields(actor, before)
	if _, moving := changes[models.FieldDepartment]; moving && !allowed.Has(models.FieldDepartment) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only privileged users can move a request to another department")
	}
	changes, dropped := changes.Restrict(allowed)
	if len(dropped) > 0 {
		s.logger.Debug("dropped request fields outside actor scope",
			requestIDField(ctx), zap.String("request", id), zap.Any("fields", dropped))
	}
	if len(changes) == 0 {
		return before, nil
	}

	newStatus, statusChanged := changes[models.FieldStatus]
	var after *models.Request
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if statusChanged {
			// The transition starts from the locked row, not from the earlier unlocked read.
			current, err := s.requests.LockStatus(ctx, filter)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, "request not found")
				}
				return appErrors.Internal(err, "failed to lock request")
			}
			before.Status = current
			if string(current) == newStatus.(string) {
				delete(changes, models.FieldStatus)
				statusChanged = false
				if len(changes) == 0 {
					return errAlreadyApplied
				}
			}
		}
		affected, err := s.requests.Update(ctx, filter, changes)
		if err != nil {
			return appErrors.Internal(err, "failed to update request")
		}
		if affected == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		if statusChanged {
			if _, err := s.recorder.RecordTransition(ctx, id, before.Status, models.RequestStatus(newStatus.(string)), actor, comment); err != nil {
				return err
			}
		}
		after, err = s.requests.FindOne(ctx, repository.Where(repository.Eq("id", id)))
		if err != nil {
			return appErrors.Internal(err, "failed to reload request")
		}
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		return before, nil
	}
	if err != nil {
		return nil, err
	}

	fields := make([]models.Field, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	description := fmt.Sprintf("Updated request %q", after.Title)
	if statusChanged {
		description = fmt.Sprintf("Changed status of request %q from %s to %s", after.Title, before.Status, after.Status)
	}
	s.audit.Log(ctx, ActivityRecord{
		Actor:       actor,
		Action:      models.ActionUpdate,
		EntityType:  models.EntityRequests,
		EntityID:    id,
		Description: description,
		Old:         pick(before.Snapshot(), fields),
		New:         pick(after.Snapshot(), fields),
	})

	prev, next := *before, *after
	if statusChanged {
		s.effects.Go(ctx, "notify.request_status", func(ctx context.Context) error {
			return s.notifier.RequestStatusChanged(ctx, actor, &prev, &next).Err()
		})
	} else {
		s.effects.Go(ctx, "notify.request_updated", func(ctx context.Context) error {
			return s.notifier.RequestUpdated(ctx, actor, &prev, &next).Err()
		})
	}
	return after, nil
}

// Delete removes a request. Only privileged actors and the submitter may delete.
func (s *RequestService) Delete(ctx context.Context, actor *models.Actor, id string) error {
	scope, err := s.scope.ResolveRequestScope(actor)
	if err != nil {
		return err
	}
	before, err := s.load(ctx, scope.Filter(), id)
	if err != nil {
		return err
	}
	if !scope.Unrestricted && before.UserID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the submitter can delete this request")
	}
	return s.remove(ctx, actor, scope.Filter(), before)
}

// BulkDelete removes every listed request or none. All ids must fall inside the actor's delete scope
// before anything is removed; rows are then deleted one at a time and failures are reported per row.
func (s *RequestService) BulkDelete(ctx context.Context, actor *models.Actor, input BulkDeleteInput) (*BulkDeleteResult, error) {
	scope, err := s.scope.ResolveRequestScope(actor)
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

	deletable := scope.Filter()
	if !scope.Unrestricted {
		deletable = deletable.And(repository.Eq("user_id", actor.ID))
	}
	found, err := s.requests.ListIDs(ctx, deletable.And(repository.In("id", ids)))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to verify requests")
	}
	if len(found) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more requests were not found")
	}

	result := &BulkDeleteResult{Deleted: make([]string, 0, len(ids))}
	for _, id := range ids {
		err := func() error {
			before, err := s.load(ctx, deletable, id)
			if err != nil {
				return err
			}
			return s.remove(ctx, actor, deletable, before)
		}()
		if err != nil {
			s.logger.Warn("bulk delete row failed", requestIDField(ctx), zap.String("request", id), zap.Error(err))
			result.Failed = append(result.Failed, BulkDeleteFailure{ID: id, Error: appErrors.FromError(err).Message})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}

// History returns the status transitions of a request visible to the actor.
func (s *RequestService) History(ctx context.Context, actor *models.Actor, id string) ([]models.StatusHistoryEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.recorder.History(ctx, id)
}

func (s *RequestService) remove(ctx context.Context, actor *models.Actor, scope repository.Filter, before *models.Request) error {
	affected, err := s.requests.Delete(ctx, scope.And(repository.Eq("id", before.ID)))
	if err != nil {
		return appErrors.Internal(err, "failed to delete request")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}

	s.audit.Log(ctx, ActivityRecord{
		Actor:       actor,
		Action:      models.ActionDelete,
		EntityType:  models.EntityRequests,
		EntityID:    before.ID,
		Description: fmt.Sprintf("Deleted request %q", before.Title),
		Old:         before.Snapshot(),
	})
	removed := *before
	s.effects.Go(ctx, "notify.request_deleted", func(ctx context.Context) error {
		return s.notifier.RequestDeleted(ctx, actor, &removed).Err()
	})
	return nil
}

func (s *RequestService) load(ctx context.Context, scope repository.Filter, id string) (*models.Request, error) {
	request, err := s.requests.FindOne(ctx, scope.And(repository.Eq("id", id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Internal(err, "failed to load request")
	}
	return request, nil
}

// pick keeps only the snapshot keys for the given fields.
func pick(snapshot models.Snapshot, fields []models.Field) models.Snapshot {
	if len(fields) == 0 {
		return nil
	}
	out := make(models.Snapshot, len(fields))
	for _, f := range fields {
		out[string(f)] = snapshot[string(f)]
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
