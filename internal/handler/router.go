package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-workflow-api/internal/middleware"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth          *AuthHandler
	Requests      *RequestHandler
	Tasks         *TaskHandler
	Activity      *ActivityHandler
	Notifications *NotificationHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts probes at the root and the API under prefix. Everything except login
// requires a bearer token.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, tokens middleware.TokenValidator) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.Origin())
	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	secured.GET("/auth/me", h.Auth.Me)

	requests := secured.Group("/requests")
	requests.GET("", h.Requests.List)
	requests.POST("", h.Requests.Create)
	requests.POST("/bulk-delete", h.Requests.BulkDelete)
	requests.GET("/:id", h.Requests.Get)
	requests.PUT("/:id", h.Requests.Update)
	requests.PATCH("/:id/status", h.Requests.UpdateStatus)
	requests.GET("/:id/history", h.Requests.History)
	requests.DELETE("/:id", h.Requests.Delete)

	tasks := secured.Group("/tasks")
	tasks.GET("", h.Tasks.List)
	tasks.POST("", h.Tasks.Create)
	tasks.POST("/bulk-delete", h.Tasks.BulkDelete)
	tasks.GET("/:id", h.Tasks.Get)
	tasks.PUT("/:id", h.Tasks.Update)
	tasks.PATCH("/:id/approval", h.Tasks.UpdateApproval)
	tasks.DELETE("/:id", h.Tasks.Delete)

	logs := secured.Group("/activity-logs")
	logs.GET("", h.Activity.List)
	logs.GET("/export", h.Activity.Export)
	logs.GET("/:id", h.Activity.Get)

	inbox := secured.Group("/notifications")
	inbox.GET("", h.Notifications.List)
	inbox.GET("/unread-count", h.Notifications.UnreadCount)
	inbox.PATCH("/read-all", h.Notifications.MarkAllRead)
	inbox.PATCH("/:id/read", h.Notifications.MarkRead)
}
