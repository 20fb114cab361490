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

type requestService interface {
	List(ctx context.Context, actor *models.Actor, query models.RequestFilter) ([]models.Request, *models.Pagination, error)
	Get(ctx context.Context, actor *models.Actor, id string) (*models.Request, error)
	Create(ctx context.Context, actor *models.Actor, input service.CreateRequestInput) (*models.Request, error)
	Update(ctx context.Context, actor *models.Actor, id string, input service.UpdateRequestInput) (*models.Request, error)
	UpdateStatus(ctx context.Context, actor *models.Actor, id string, input service.UpdateRequestStatusInput) (*models.Request, error)
	Delete(ctx context.Context, actor *models.Actor, id string) error
	BulkDelete(ctx context.Context, actor *models.Actor, input service.BulkDeleteInput) (*service.BulkDeleteResult, error)
	History(ctx context.Context, actor *models.Actor, id string) ([]models.StatusHistoryEntry, error)
}

// RequestHandler exposes citizen request endpoints.
type RequestHandler struct {
	requests requestService
}

// NewRequestHandler constructs RequestHandler.
func NewRequestHandler(requests requestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// List godoc
// @Summary List requests
// @Description Requests visible to the caller. Department members only see their own department.
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search title, name, description or email"
// @Param status query []string false "Filter by status" collectionFormat(csv)
// @Param department query string false "Filter by department"
// @Param type query string false "Filter by type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := models.RequestFilter{
		Search:     strings.TrimSpace(c.Query("search")),
		Department: c.Query("department"),
		Type:       c.Query("type"),
	}
	for _, status := range listQuery(c, "status") {
		filter.Status = append(filter.Status, models.RequestStatus(status))
	}
	filter.Page, filter.PageSize = pageQuery(c)

	items, pagination, err := h.requests.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get request detail
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	item, err := h.requests.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.CreateRequestInput
	if !bindJSON(c, &input) {
		return
	}
	item, err := h.requests.Create(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update request
// @Description Applies the fields the caller may change. Fields outside the caller's rights are ignored,
// @Description except a department move by a non-privileged caller: that is refused with 403 because the
// @Description request is visible to the caller. Requests outside the caller's scope answer 404.
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body service.UpdateRequestInput true "Request payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope "Department move without privileges"
// @Failure 404 {object} response.Envelope "Missing or outside the caller's scope"
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.UpdateRequestInput
	if !bindJSON(c, &input) {
		return
	}
	item, err := h.requests.Update(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateStatus godoc
// @Summary Change request status
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body service.UpdateRequestStatusInput true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope "History could not be recorded"
// @Router /requests/{id}/status [patch]
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.UpdateRequestStatusInput
	if !bindJSON(c, &input) {
		return
	}
	item, err := h.requests.UpdateStatus(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete request
// @Tags Requests
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 204
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.requests.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkDelete godoc
// @Summary Delete several requests
// @Description Either every id is deletable by the caller or nothing is removed.
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BulkDeleteInput true "Ids"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/bulk-delete [post]
func (h *RequestHandler) BulkDelete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.BulkDeleteInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.requests.BulkDelete(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary Request status history
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/history [get]
func (h *RequestHandler) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	entries, err := h.requests.History(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
