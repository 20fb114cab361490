package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mssola/useragent"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type activityStore interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter repository.Filter, page models.Page) ([]models.ActivityLog, int, error)
	FindOne(ctx context.Context, filter repository.Filter) (*models.ActivityLog, error)
}

// ActivityRecord describes one mutation to be written to the activity log.
// Old and New are the caller's snapshots of the state immediately before and after the mutation.
type ActivityRecord struct {
	Actor       *models.Actor
	Action      models.ActivityAction
	EntityType  string
	EntityID    string
	Description string
	Old         models.Snapshot
	New         models.Snapshot
}

// AuditLogger persists activity records best-effort and serves the audit read model.
type AuditLogger struct {
	store   activityStore
	scope   *AccessScopeResolver
	effects *SideEffects
	logger  *zap.Logger
}

// NewAuditLogger constructs the logger.
func NewAuditLogger(store activityStore, scope *AccessScopeResolver, effects *SideEffects, logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if effects == nil {
		effects = NewSideEffects(logger, nil)
	}
	return &AuditLogger{store: store, scope: scope, effects: effects, logger: logger}
}

// Log writes the record without affecting the caller. Origin metadata is taken from ctx.
func (a *AuditLogger) Log(ctx context.Context, record ActivityRecord) {
	origin := models.OriginFromContext(ctx)
	a.effects.Go(ctx, "audit."+strings.ToLower(string(record.Action)), func(ctx context.Context) error {
		return a.write(ctx, record, origin)
	})
}

func (a *AuditLogger) write(ctx context.Context, record ActivityRecord, origin models.Origin) error {
	if !record.Action.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown activity action")
	}
	entry := &models.ActivityLog{
		Action:      record.Action,
		EntityType:  record.EntityType,
		EntityID:    record.EntityID,
		Description: record.Description,
		OldValues:   record.Old,
		NewValues:   record.New,
		IPAddress:   origin.IPAddress,
		UserAgent:   origin.UserAgent,
	}
	if record.Actor.Valid() {
		id := record.Actor.ID
		entry.UserID = &id
		entry.UserName = record.Actor.Name
		entry.UserEmail = record.Actor.Email
	}
	return a.store.Create(ctx, entry)
}

// List returns activity logs newest first. Privileged actors see every entry, others only their own.
func (a *AuditLogger) List(ctx context.Context, actor *models.Actor, query models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error) {
	filter, err := a.readScope(actor)
	if err != nil {
		return nil, nil, err
	}
	filter, err = applyActivityQuery(filter, query)
	if err != nil {
		return nil, nil, err
	}

	page := models.NormalizePage(query.Page, query.PageSize)
	entries, total, err := a.store.List(ctx, filter, page)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list activity logs")
	}
	for i := range entries {
		entries[i].Client = describeClient(entries[i].UserAgent)
	}
	return entries, models.NewPagination(page.Number, page.Size, total), nil
}

// Get returns one activity log entry within the actor's read scope.
func (a *AuditLogger) Get(ctx context.Context, actor *models.Actor, id string) (*models.ActivityLog, error) {
	filter, err := a.readScope(actor)
	if err != nil {
		return nil, err
	}
	entry, err := a.store.FindOne(ctx, filter.And(repository.Eq("id", id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity log not found")
		}
		return nil, appErrors.Internal(err, "failed to load activity log")
	}
	entry.Client = describeClient(entry.UserAgent)
	return entry, nil
}

func (a *AuditLogger) readScope(actor *models.Actor) (repository.Filter, error) {
	if !actor.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if a.scope != nil && a.scope.IsPrivileged(actor) {
		return repository.Where(), nil
	}
	return repository.Where(repository.Eq("user_id", actor.ID)), nil
}

func applyActivityQuery(filter repository.Filter, query models.ActivityFilter) (repository.Filter, error) {
	if action := models.ActivityAction(strings.ToUpper(strings.TrimSpace(string(query.Action)))); action != "" {
		if !action.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "action must be CREATE, UPDATE or DELETE")
		}
		filter = filter.And(repository.Eq("action", string(action)))
	}
	if entityType := strings.TrimSpace(query.EntityType); entityType != "" {
		filter = filter.And(repository.Eq("entity_type", entityType))
	}
	if entityID := strings.TrimSpace(query.EntityID); entityID != "" {
		filter = filter.And(repository.Eq("entity_id", entityID))
	}
	return filter.And(repository.Search(query.Search, "user_name", "user_email", "description", "entity_type")...), nil
}

func describeClient(raw string) *models.ClientInfo {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return &models.ClientInfo{
		Browser: name,
		Version: version,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}
