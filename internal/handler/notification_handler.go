package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/pkg/response"
)

type inboxService interface {
	List(ctx context.Context, actor *models.Actor, query models.NotificationFilter) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, actor *models.Actor) (int, error)
	MarkRead(ctx context.Context, actor *models.Actor, id string) error
	MarkAllRead(ctx context.Context, actor *models.Actor) (int64, error)
}

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	inbox inboxService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(inbox inboxService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread"
// @Param type query string false "Notification type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := models.NotificationFilter{Type: models.NotificationType(c.Query("type"))}
	if unread, err := strconv.ParseBool(c.Query("unread")); err == nil {
		filter.UnreadOnly = unread
	}
	filter.Page, filter.PageSize = pageQuery(c)

	items, pagination, err := h.inbox.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount godoc
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	count, err := h.inbox.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark every notification as read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [patch]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	updated, err := h.inbox.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
