package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		claims := Claims(c)
		origin := models.OriginFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "ua": origin.UserAgent})
	})
	r.GET("/probe", handlers...)
	return r
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newRouter(JWT(&validatorStub{}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTPropagatesValidationError(t *testing.T) {
	stub := &validatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}
	r := newRouter(JWT(stub))
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "abc", stub.token)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestJWTStoresClaimsAndOrigin(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleMember}}
	r := newRouter(Origin(), JWT(stub))
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "bearer  tok ")
	req.Header.Set("User-Agent", "curl/8.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", stub.token)
	assert.JSONEq(t, `{"user":"u-1","ua":"curl/8.0"}`, w.Body.String())
}
