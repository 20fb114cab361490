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

type taskService interface {
	List(ctx context.Context, actor *models.Actor, query models.TaskFilter) ([]models.Task, *models.Pagination, error)
	Get(ctx context.Context, actor *models.Actor, id string) (*models.Task, error)
	Create(ctx context.Context, actor *models.Actor, input service.CreateTaskInput) (*models.Task, error)
	Update(ctx context.Context, actor *models.Actor, id string, input service.UpdateTaskInput) (*models.Task, error)
	UpdateApproval(ctx context.Context, actor *models.Actor, id string, input service.UpdateTaskApprovalInput) (*models.Task, error)
	Delete(ctx context.Context, actor *models.Actor, id string) error
	BulkDelete(ctx context.Context, actor *models.Actor, input service.BulkDeleteInput) (*service.BulkDeleteResult, error)
}

// TaskHandler exposes internal task endpoints.
type TaskHandler struct {
	tasks taskService
}

// NewTaskHandler constructs TaskHandler.
func NewTaskHandler(tasks taskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List godoc
// @Summary List tasks
// @Description Tasks the caller created or is assigned to. Privileged callers see every task.
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search title, description, notes or category"
// @Param status query []string false "Filter by status" collectionFormat(csv)
// @Param priority query []string false "Filter by priority" collectionFormat(csv)
// @Param approval_status query string false "Filter by approval status"
// @Param category query string false "Filter by category"
// @Param assigned_to query string false "Filter by assignee"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := models.TaskFilter{
		Search:         strings.TrimSpace(c.Query("search")),
		ApprovalStatus: c.Query("approval_status"),
		Category:       c.Query("category"),
		AssignedTo:     c.Query("assigned_to"),
	}
	for _, status := range listQuery(c, "status") {
		filter.Status = append(filter.Status, models.TaskStatus(status))
	}
	for _, priority := range listQuery(c, "priority") {
		filter.Priority = append(filter.Priority, models.TaskPriority(priority))
	}
	filter.Page, filter.PageSize = pageQuery(c)

	items, pagination, err := h.tasks.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get task detail
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Create godoc
// @Summary Create task
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTaskInput true "Task payload"
// @Success 201 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.CreateTaskInput
	if !bindJSON(c, &input) {
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Update godoc
// @Summary Update task
// @Description Creators may change every field; assignees only status, completion, notes and approval.
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param payload body service.UpdateTaskInput true "Task payload"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.UpdateTaskInput
	if !bindJSON(c, &input) {
		return
	}
	task, err := h.tasks.Update(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// UpdateApproval godoc
// @Summary Record task approval
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param payload body service.UpdateTaskApprovalInput true "Approval payload"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id}/approval [patch]
func (h *TaskHandler) UpdateApproval(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.UpdateTaskApprovalInput
	if !bindJSON(c, &input) {
		return
	}
	task, err := h.tasks.UpdateApproval(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Delete godoc
// @Summary Delete task
// @Tags Tasks
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 204
// @Router /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkDelete godoc
// @Summary Delete several tasks
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BulkDeleteInput true "Ids"
// @Success 200 {object} response.Envelope
// @Router /tasks/bulk-delete [post]
func (h *TaskHandler) BulkDelete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input service.BulkDeleteInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.tasks.BulkDelete(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
