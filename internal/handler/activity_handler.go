package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/service"
	"github.com/noah-isme/civic-workflow-api/pkg/response"
)

type activityLogService interface {
	List(ctx context.Context, actor *models.Actor, query models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error)
	Get(ctx context.Context, actor *models.Actor, id string) (*models.ActivityLog, error)
}

type activityExporter interface {
	Export(ctx context.Context, actor *models.Actor, query models.ActivityFilter, format string) (*service.ExportFile, error)
}

// ActivityHandler serves the audit trail.
type ActivityHandler struct {
	logs     activityLogService
	exporter activityExporter
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(logs activityLogService, exporter activityExporter) *ActivityHandler {
	return &ActivityHandler{logs: logs, exporter: exporter}
}

func activityFilter(c *gin.Context) models.ActivityFilter {
	filter := models.ActivityFilter{
		Search:     strings.TrimSpace(c.Query("search")),
		Action:     models.ActivityAction(c.Query("action")),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}
	filter.Page, filter.PageSize = pageQuery(c)
	return filter
}

// List godoc
// @Summary List activity logs
// @Description Newest first. Privileged callers see every entry, others their own.
// @Tags Activity Logs
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search user, email, description or entity type"
// @Param action query string false "CREATE, UPDATE or DELETE"
// @Param entity_type query string false "requests or tasks"
// @Param entity_id query string false "Entity id"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activity-logs [get]
func (h *ActivityHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	entries, pagination, err := h.logs.List(c.Request.Context(), actor, activityFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get activity log entry
// @Tags Activity Logs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /activity-logs/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	entry, err := h.logs.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Export godoc
// @Summary Export activity logs
// @Tags Activity Logs
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Param action query string false "CREATE, UPDATE or DELETE"
// @Param entity_type query string false "requests or tasks"
// @Success 200 {file} file
// @Router /activity-logs/export [get]
func (h *ActivityHandler) Export(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), actor, activityFilter(c), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if file.Truncated {
		c.Header("X-Export-Truncated", "true")
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
