package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/civic-workflow-api/internal/models"
)

const defaultFanoutConcurrency = 8

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type departmentDirectory interface {
	Members(ctx context.Context, department string) ([]string, error)
}

type notificationPublisher interface {
	Publish(ctx context.Context, notification *models.Notification) error
}

// NotificationInput is one notification addressed to one recipient.
type NotificationInput struct {
	RecipientID string
	Title       string
	Message     string
	Type        models.NotificationType
	RelatedID   string
	RelatedType string
}

// DispatchFailures maps recipients to the error that prevented their notification.
type DispatchFailures struct {
	ByRecipient map[string]error
	retry       SideEffectFunc
}

// Error implements error.
func (f *DispatchFailures) Error() string {
	return fmt.Sprintf("%d notification(s) failed", len(f.ByRecipient))
}

// Recipients returns the failed recipient ids in order.
func (f *DispatchFailures) Recipients() []string {
	out := make([]string, 0, len(f.ByRecipient))
	for id := range f.ByRecipient {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Remaining returns work that re-sends only the undelivered notifications, or nil when the
// failure happened before any recipient was attempted.
func (f *DispatchFailures) Remaining() SideEffectFunc {
	return f.retry
}

// DispatchReport summarises one fan-out.
type DispatchReport struct {
	Attempted  int
	Delivered  int
	Recipients []string
	Failures   map[string]error

	undelivered []NotificationInput
	dispatcher  *NotificationDispatcher
}

// Err returns nil when every recipient was notified.
func (r DispatchReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	failures := &DispatchFailures{ByRecipient: r.Failures}
	if r.dispatcher != nil && len(r.undelivered) > 0 {
		d, pending := r.dispatcher, r.undelivered
		failures.retry = func(ctx context.Context) error {
			return d.dispatch(ctx, pending).Err()
		}
	}
	return failures
}

// NotificationDispatcher resolves who is affected by a change and notifies each recipient independently.
type NotificationDispatcher struct {
	store       notificationStore
	directory   departmentDirectory
	publisher   notificationPublisher
	metrics     *MetricsService
	logger      *zap.Logger
	concurrency int
}

// NewNotificationDispatcher constructs the dispatcher. publisher may be nil.
func NewNotificationDispatcher(store notificationStore, directory departmentDirectory, publisher notificationPublisher, metrics *MetricsService, logger *zap.Logger, concurrency int) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = defaultFanoutConcurrency
	}
	return &NotificationDispatcher{
		store:       store,
		directory:   directory,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Notify stores a single notification and publishes it to live subscribers.
func (d *NotificationDispatcher) Notify(ctx context.Context, input NotificationInput) error {
	if strings.TrimSpace(input.RecipientID) == "" {
		return fmt.Errorf("notification recipient is required")
	}
	notification := &models.Notification{
		UserID:  input.RecipientID,
		Title:   input.Title,
		Message: input.Message,
		Type:    input.Type,
	}
	if input.RelatedID != "" {
		relatedID := input.RelatedID
		notification.RelatedID = &relatedID
	}
	if input.RelatedType != "" {
		relatedType := input.RelatedType
		notification.RelatedType = &relatedType
	}
	if err := d.store.Create(ctx, notification); err != nil {
		d.metrics.RecordNotification(string(input.Type), false)
		return err
	}
	d.metrics.RecordNotification(string(input.Type), true)

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, notification); err != nil {
			d.logger.Debug("live notification publish failed", zap.String("recipient", input.RecipientID), zap.Error(err))
		}
	}
	return nil
}

// dispatch sends every input concurrently, bounded by the configured limit. A failing recipient
// never stops the others.
func (d *NotificationDispatcher) dispatch(ctx context.Context, inputs []NotificationInput) DispatchReport {
	report := DispatchReport{Attempted: len(inputs), Recipients: make([]string, 0, len(inputs)), dispatcher: d}
	if len(inputs) == 0 {
		return report
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.concurrency)
	for _, input := range inputs {
		input := input
		report.Recipients = append(report.Recipients, input.RecipientID)
		g.Go(func() error {
			err := d.Notify(ctx, input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if report.Failures == nil {
					report.Failures = make(map[string]error)
				}
				report.Failures[input.RecipientID] = err
				report.undelivered = append(report.undelivered, input)
				return nil
			}
			report.Delivered++
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Failures) > 0 {
		d.logger.Warn("notification fan-out partially failed",
			requestIDField(ctx),
			zap.Int("attempted", report.Attempted),
			zap.Int("delivered", report.Delivered),
		)
	}
	return report
}

// recipients collects unique non-empty ids in first-seen order, excluding the given ids.
type recipients struct {
	order   []string
	seen    map[string]struct{}
	exclude map[string]struct{}
}

func newRecipients(exclude ...string) *recipients {
	r := &recipients{seen: map[string]struct{}{}, exclude: map[string]struct{}{}}
	for _, id := range exclude {
		if id != "" {
			r.exclude[id] = struct{}{}
		}
	}
	return r
}

func (r *recipients) add(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, skip := r.exclude[id]; skip {
			continue
		}
		if _, dup := r.seen[id]; dup {
			continue
		}
		r.seen[id] = struct{}{}
		r.order = append(r.order, id)
	}
}

func (d *NotificationDispatcher) departmentMembers(ctx context.Context, departments ...string) ([]string, error) {
	var all []string
	seen := map[string]struct{}{}
	for _, dept := range departments {
		if dept == "" {
			continue
		}
		if _, dup := seen[dept]; dup {
			continue
		}
		seen[dept] = struct{}{}
		members, err := d.directory.Members(ctx, dept)
		if err != nil {
			return nil, fmt.Errorf("resolve members of %s: %w", dept, err)
		}
		all = append(all, members...)
	}
	return all, nil
}

func (d *NotificationDispatcher) broadcast(ctx context.Context, ids []string, template NotificationInput) DispatchReport {
	inputs := make([]NotificationInput, 0, len(ids))
	for _, id := range ids {
		input := template
		input.RecipientID = id
		inputs = append(inputs, input)
	}
	return d.dispatch(ctx, inputs)
}

func failedResolution(err error) DispatchReport {
	return DispatchReport{Failures: map[string]error{"*": err}}
}

// RequestCreated notifies the owning department, except the actor.
func (d *NotificationDispatcher) RequestCreated(ctx context.Context, actor *models.Actor, request *models.Request) DispatchReport {
	members, err := d.departmentMembers(ctx, request.Department)
	if err != nil {
		return failedResolution(err)
	}
	to := newRecipients(actor.ID)
	to.add(members...)
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "New request",
		Message:     fmt.Sprintf("%s created request %q with status %s.", actorName(actor), request.Title, request.Status),
		Type:        models.NotificationRequest,
		RelatedID:   request.ID,
		RelatedType: models.EntityRequests,
	})
}

// RequestUpdated notifies the owning department, and the previous one when ownership moved.
func (d *NotificationDispatcher) RequestUpdated(ctx context.Context, actor *models.Actor, before, after *models.Request) DispatchReport {
	members, err := d.departmentMembers(ctx, after.Department, before.Department)
	if err != nil {
		return failedResolution(err)
	}
	to := newRecipients(actor.ID)
	to.add(members...)

	message := fmt.Sprintf("%s updated request %q.", actorName(actor), after.Title)
	if before.Department != after.Department {
		message = fmt.Sprintf("%s moved request %q from %s to %s.", actorName(actor), after.Title, before.Department, after.Department)
	} else if before.Title != after.Title {
		message = fmt.Sprintf("%s renamed request %q to %q.", actorName(actor), before.Title, after.Title)
	}
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "Request updated",
		Message:     message,
		Type:        models.NotificationRequest,
		RelatedID:   after.ID,
		RelatedType: models.EntityRequests,
	})
}

// RequestStatusChanged notifies the owning department and the submitter. The submitter gets only the
// submitter-specific message even when also a department member.
func (d *NotificationDispatcher) RequestStatusChanged(ctx context.Context, actor *models.Actor, before, after *models.Request) DispatchReport {
	members, err := d.departmentMembers(ctx, after.Department, before.Department)
	if err != nil {
		return failedResolution(err)
	}
	submitter := after.UserID
	if submitter == actor.ID {
		submitter = ""
	}
	to := newRecipients(actor.ID, submitter)
	to.add(members...)

	inputs := make([]NotificationInput, 0, len(to.order)+1)
	for _, id := range to.order {
		inputs = append(inputs, NotificationInput{
			RecipientID: id,
			Title:       "Request status changed",
			Message:     fmt.Sprintf("%s changed the status of %q from %s to %s.", actorName(actor), after.Title, before.Status, after.Status),
			Type:        models.NotificationRequestStatus,
			RelatedID:   after.ID,
			RelatedType: models.EntityRequests,
		})
	}
	if submitter != "" {
		inputs = append(inputs, NotificationInput{
			RecipientID: submitter,
			Title:       "Your request was updated",
			Message:     fmt.Sprintf("Your request %q is now %s (was %s).", after.Title, after.Status, before.Status),
			Type:        models.NotificationRequestStatus,
			RelatedID:   after.ID,
			RelatedType: models.EntityRequests,
		})
	}
	return d.dispatch(ctx, inputs)
}

// RequestDeleted notifies the owning department of a removed request.
func (d *NotificationDispatcher) RequestDeleted(ctx context.Context, actor *models.Actor, before *models.Request) DispatchReport {
	members, err := d.departmentMembers(ctx, before.Department)
	if err != nil {
		return failedResolution(err)
	}
	to := newRecipients(actor.ID)
	to.add(members...)
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "Request deleted",
		Message:     fmt.Sprintf("%s deleted request %q.", actorName(actor), before.Title),
		Type:        models.NotificationRequest,
		RelatedID:   before.ID,
		RelatedType: models.EntityRequests,
	})
}

// TaskCreated notifies the assignee.
func (d *NotificationDispatcher) TaskCreated(ctx context.Context, actor *models.Actor, task *models.Task) DispatchReport {
	to := newRecipients(actor.ID)
	to.add(task.Assignee())
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "Task assigned",
		Message:     fmt.Sprintf("%s assigned you the task %q.", actorName(actor), task.Title),
		Type:        models.NotificationTaskAssigned,
		RelatedID:   task.ID,
		RelatedType: models.EntityTasks,
	})
}

// TaskUpdated notifies the new and previous assignee on reassignment, otherwise the counterpart of the actor.
func (d *NotificationDispatcher) TaskUpdated(ctx context.Context, actor *models.Actor, before, after *models.Task) DispatchReport {
	if before.Assignee() != after.Assignee() {
		var inputs []NotificationInput
		if id := after.Assignee(); id != "" && id != actor.ID {
			inputs = append(inputs, NotificationInput{
				RecipientID: id,
				Title:       "Task assigned",
				Message:     fmt.Sprintf("%s assigned you the task %q.", actorName(actor), after.Title),
				Type:        models.NotificationTaskAssigned,
				RelatedID:   after.ID,
				RelatedType: models.EntityTasks,
			})
		}
		if id := before.Assignee(); id != "" && id != actor.ID {
			inputs = append(inputs, NotificationInput{
				RecipientID: id,
				Title:       "Task unassigned",
				Message:     fmt.Sprintf("%s removed you from the task %q.", actorName(actor), before.Title),
				Type:        models.NotificationTaskUnassigned,
				RelatedID:   after.ID,
				RelatedType: models.EntityTasks,
			})
		}
		return d.dispatch(ctx, inputs)
	}

	var counterpart string
	switch actor.ID {
	case after.Assignee():
		counterpart = after.CreatedBy
	case after.CreatedBy:
		counterpart = after.Assignee()
	}
	to := newRecipients(actor.ID)
	to.add(counterpart)
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "Task updated",
		Message:     describeTaskChange(actor, before, after),
		Type:        models.NotificationTaskUpdated,
		RelatedID:   after.ID,
		RelatedType: models.EntityTasks,
	})
}

// TaskApprovalChanged notifies whichever of creator and assignee did not make the change.
func (d *NotificationDispatcher) TaskApprovalChanged(ctx context.Context, actor *models.Actor, before, after *models.Task) DispatchReport {
	to := newRecipients(actor.ID)
	to.add(after.CreatedBy, after.Assignee())
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "Task approval changed",
		Message:     fmt.Sprintf("%s changed the approval of %q from %s to %s.", actorName(actor), after.Title, before.ApprovalStatus, after.ApprovalStatus),
		Type:        models.NotificationTaskApproval,
		RelatedID:   after.ID,
		RelatedType: models.EntityTasks,
	})
}

// TaskDeleted notifies the assignee captured before the task was removed.
func (d *NotificationDispatcher) TaskDeleted(ctx context.Context, actor *models.Actor, before *models.Task) DispatchReport {
	to := newRecipients(actor.ID)
	to.add(before.Assignee())
	return d.broadcast(ctx, to.order, NotificationInput{
		Title:       "Task deleted",
		Message:     fmt.Sprintf("%s deleted the task %q.", actorName(actor), before.Title),
		Type:        models.NotificationTaskDeleted,
		RelatedID:   before.ID,
		RelatedType: models.EntityTasks,
	})
}

func describeTaskChange(actor *models.Actor, before, after *models.Task) string {
	var parts []string
	if before.Status != after.Status {
		parts = append(parts, fmt.Sprintf("status from %s to %s", before.Status, after.Status))
	}
	if before.CompletionPercentage != after.CompletionPercentage {
		parts = append(parts, fmt.Sprintf("completion from %d%% to %d%%", before.CompletionPercentage, after.CompletionPercentage))
	}
	if before.Priority != after.Priority {
		parts = append(parts, fmt.Sprintf("priority from %s to %s", before.Priority, after.Priority))
	}
	if before.Title != after.Title {
		parts = append(parts, fmt.Sprintf("title from %q to %q", before.Title, after.Title))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s updated the task %q.", actorName(actor), after.Title)
	}
	return fmt.Sprintf("%s changed %s on %q.", actorName(actor), strings.Join(parts, ", "), after.Title)
}

func actorName(actor *models.Actor) string {
	if actor == nil {
		return "Someone"
	}
	if actor.Name != "" {
		return actor.Name
	}
	if actor.Email != "" {
		return actor.Email
	}
	return "Someone"
}
