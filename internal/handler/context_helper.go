package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-workflow-api/internal/middleware"
	"github.com/noah-isme/civic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
	"github.com/noah-isme/civic-workflow-api/pkg/response"
)

// currentActor returns the authenticated actor, writing a 401 when there is none.
func currentActor(c *gin.Context) (*models.Actor, bool) {
	actor := middleware.Claims(c).Actor()
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// pageQuery reads page and limit. Bad values fall back to the service defaults.
func pageQuery(c *gin.Context) (page, size int) {
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(models.DefaultPageSize))); err == nil {
		size = v
	}
	return page, size
}

// listQuery collects a repeatable or comma separated query parameter.
func listQuery(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
