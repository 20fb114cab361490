package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type inboxStore interface {
	List(ctx context.Context, filter repository.Filter, page models.Page) ([]models.Notification, int, error)
	Count(ctx context.Context, filter repository.Filter) (int, error)
	MarkRead(ctx context.Context, filter repository.Filter, at time.Time) (int64, error)
}

// NotificationService serves a recipient's own inbox. Every query is pinned to the actor.
type NotificationService struct {
	store  inboxStore
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService constructs the service.
func NewNotificationService(store inboxStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, logger: logger, now: time.Now}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor *models.Actor, query models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	filter, err := inbox(actor)
	if err != nil {
		return nil, nil, err
	}
	if query.UnreadOnly {
		filter = filter.And(repository.Eq("is_read", false))
	}
	if typ := strings.TrimSpace(string(query.Type)); typ != "" {
		filter = filter.And(repository.Eq("type", typ))
	}
	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.store.List(ctx, filter, page)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list notifications")
	}
	return items, models.NewPagination(page.Number, page.Size, total), nil
}

// UnreadCount returns how many notifications the actor has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.Actor) (int, error) {
	filter, err := inbox(actor)
	if err != nil {
		return 0, err
	}
	count, err := s.store.Count(ctx, filter.And(repository.Eq("is_read", false)))
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one notification as read. Marking an already read notification is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, actor *models.Actor, id string) error {
	filter, err := inbox(actor)
	if err != nil {
		return err
	}
	filter = filter.And(repository.Eq("id", id))
	affected, err := s.store.MarkRead(ctx, filter, s.now().UTC())
	if err != nil {
		return appErrors.Internal(err, "failed to update notification")
	}
	if affected > 0 {
		return nil
	}
	exists, err := s.store.Count(ctx, filter)
	if err != nil {
		return appErrors.Internal(err, "failed to load notification")
	}
	if exists == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead flags every unread notification of the actor and reports how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.Actor) (int64, error) {
	filter, err := inbox(actor)
	if err != nil {
		return 0, err
	}
	affected, err := s.store.MarkRead(ctx, filter, s.now().UTC())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to update notifications")
	}
	return affected, nil
}

func inbox(actor *models.Actor) (repository.Filter, error) {
	if !actor.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return repository.Where(repository.Eq("user_id", actor.ID)), nil
}
