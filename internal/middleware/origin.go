package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-workflow-api/internal/models"
)

// Origin attaches the caller's address and user agent to the request context so activity
// records written further down can carry them.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := models.ContextWithOrigin(c.Request.Context(), models.Origin{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
