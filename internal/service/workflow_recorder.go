package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type historyStore interface {
	Append(ctx context.Context, entry *models.StatusHistoryEntry) error
	ListByRequest(ctx context.Context, requestID string) ([]models.StatusHistoryEntry, error)
}

// WorkflowRecorder appends request status transitions. It is called inside the transaction that
// writes the status so both commit or neither does.
type WorkflowRecorder struct {
	store   historyStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewWorkflowRecorder constructs the recorder.
func NewWorkflowRecorder(store historyStore, metrics *MetricsService, logger *zap.Logger) *WorkflowRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowRecorder{store: store, metrics: metrics, logger: logger}
}

// RecordTransition appends one history row. Any failure is an inconsistent state for the caller.
func (w *WorkflowRecorder) RecordTransition(ctx context.Context, requestID string, from, to models.RequestStatus, actor *models.Actor, comment string) (*models.StatusHistoryEntry, error) {
	if !actor.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	entry := &models.StatusHistoryEntry{
		RequestID:           requestID,
		OldStatus:           from,
		NewStatus:           to,
		UpdatedBy:           actor.ID,
		UpdatedByDepartment: actor.Department,
	}
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		entry.Comment = &trimmed
	}
	if err := w.store.Append(ctx, entry); err != nil {
		w.logger.Error("failed to append status history",
			requestIDField(ctx),
			zap.String("request", requestID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrInconsistentState.Code, appErrors.ErrInconsistentState.Status, appErrors.ErrInconsistentState.Message)
	}
	w.metrics.RecordStatusTransition(string(from), string(to))
	if actor.Name != "" {
		name := actor.Name
		entry.UpdatedByName = &name
	}
	return entry, nil
}

// History returns every transition of a request, oldest first.
func (w *WorkflowRecorder) History(ctx context.Context, requestID string) ([]models.StatusHistoryEntry, error) {
	entries, err := w.store.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load status history")
	}
	return entries, nil
}
