package service

import (
	"strings"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

var (
	requestAllFields = models.NewFieldSet(
		models.FieldDepartment, models.FieldName, models.FieldIdentityNumber, models.FieldPhone, models.FieldEmail,
		models.FieldAddress, models.FieldType, models.FieldTitle, models.FieldDescription, models.FieldStatus,
	)
	requestSubmitterFields  = requestAllFields.Without(models.FieldDepartment)
	requestDepartmentFields = models.NewFieldSet(models.FieldStatus)

	taskCreatorFields = models.NewFieldSet(
		models.FieldTitle, models.FieldDescription, models.FieldCategory, models.FieldAssignedTo, models.FieldStatus,
		models.FieldPriority, models.FieldApprovalStatus, models.FieldNotes, models.FieldCompletionPercentage, models.FieldDueDate,
	)
	taskAssigneeFields = models.NewFieldSet(
		models.FieldStatus, models.FieldCompletionPercentage, models.FieldNotes, models.FieldApprovalStatus,
	)
)

// RequestScope is the set of requests an actor may see.
type RequestScope struct {
	Unrestricted bool
	Department   string
}

// Filter renders the scope as repository predicates.
func (s RequestScope) Filter() repository.Filter {
	if s.Unrestricted {
		return repository.Where()
	}
	return repository.Where(repository.Eq("department", s.Department))
}

// TaskScope is the set of tasks an actor may see.
type TaskScope struct {
	Unrestricted bool
	UserID       string
}

// Filter renders the scope as repository predicates.
func (s TaskScope) Filter() repository.Filter {
	if s.Unrestricted {
		return repository.Where()
	}
	return repository.Where(repository.AnyOf(
		repository.Eq("created_by", s.UserID),
		repository.Eq("assigned_to", s.UserID),
	))
}

// AccessScopeResolver decides what an actor may see and change based on role and department.
type AccessScopeResolver struct {
	executiveDepartment string
}

// NewAccessScopeResolver builds a resolver. Members of executiveDepartment are privileged.
func NewAccessScopeResolver(executiveDepartment string) *AccessScopeResolver {
	return &AccessScopeResolver{executiveDepartment: strings.TrimSpace(executiveDepartment)}
}

// IsPrivileged reports whether the actor sees and may change every record.
func (r *AccessScopeResolver) IsPrivileged(actor *models.Actor) bool {
	if !actor.Valid() {
		return false
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleExecutive:
		return true
	}
	return r.executiveDepartment != "" && strings.EqualFold(strings.TrimSpace(actor.Department), r.executiveDepartment)
}

// ResolveRequestScope resolves request visibility for the actor.
func (r *AccessScopeResolver) ResolveRequestScope(actor *models.Actor) (RequestScope, error) {
	if !actor.Valid() {
		return RequestScope{}, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if r.IsPrivileged(actor) {
		return RequestScope{Unrestricted: true}, nil
	}
	if strings.TrimSpace(actor.Department) == "" {
		return RequestScope{}, appErrors.Clone(appErrors.ErrForbidden, "actor has no department")
	}
	return RequestScope{Department: actor.Department}, nil
}

// RequestMutableFields returns the fields the actor may change on a request already inside its scope.
func (r *AccessScopeResolver) RequestMutableFields(actor *models.Actor, request *models.Request) models.FieldSet {
	switch {
	case r.IsPrivileged(actor):
		return requestAllFields
	case actor.Valid() && request.UserID == actor.ID:
		return requestSubmitterFields
	default:
		return requestDepartmentFields
	}
}

// ResolveTaskScope resolves task visibility for the actor.
func (r *AccessScopeResolver) ResolveTaskScope(actor *models.Actor) (TaskScope, error) {
	if !actor.Valid() {
		return TaskScope{}, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if r.IsPrivileged(actor) {
		return TaskScope{Unrestricted: true}, nil
	}
	return TaskScope{UserID: actor.ID}, nil
}

// TaskMutableFields returns the fields the actor may change given its relationship to the task.
// Visibility alone grants nothing: an actor that is neither creator nor assignee is refused.
func (r *AccessScopeResolver) TaskMutableFields(actor *models.Actor, task *models.Task) (models.FieldSet, error) {
	if !actor.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	switch {
	case task.CreatedBy == actor.ID:
		return taskCreatorFields, nil
	case task.Assignee() == actor.ID:
		return taskAssigneeFields, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator or assignee may change this task")
	}
}
