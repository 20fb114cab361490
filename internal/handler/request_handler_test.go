package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-workflow-api/internal/middleware"
	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/internal/service"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type requestServiceMock struct {
	lastActor  *models.Actor
	lastFilter models.RequestFilter
	lastStatus service.UpdateRequestStatusInput
	lastBulk   service.BulkDeleteInput
	listResp   []models.Request
	item       *models.Request
	err        error
}

func (m *requestServiceMock) List(ctx context.Context, actor *models.Actor, query models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	m.lastActor, m.lastFilter = actor, query
	return m.listResp, models.NewPagination(query.Page, query.PageSize, len(m.listResp)), m.err
}

func (m *requestServiceMock) Get(ctx context.Context, actor *models.Actor, id string) (*models.Request, error) {
	m.lastActor = actor
	return m.item, m.err
}

func (m *requestServiceMock) Create(ctx context.Context, actor *models.Actor, input service.CreateRequestInput) (*models.Request, error) {
	m.lastActor = actor
	return m.item, m.err
}

func (m *requestServiceMock) Update(ctx context.Context, actor *models.Actor, id string, input service.UpdateRequestInput) (*models.Request, error) {
	return m.item, m.err
}

func (m *requestServiceMock) UpdateStatus(ctx context.Context, actor *models.Actor, id string, input service.UpdateRequestStatusInput) (*models.Request, error) {
	m.lastStatus = input
	return m.item, m.err
}

func (m *requestServiceMock) Delete(ctx context.Context, actor *models.Actor, id string) error {
	return m.err
}

func (m *requestServiceMock) BulkDelete(ctx context.Context, actor *models.Actor, input service.BulkDeleteInput) (*service.BulkDeleteResult, error) {
	m.lastBulk = input
	if m.err != nil {
		return nil, m.err
	}
	return &service.BulkDeleteResult{Deleted: input.IDs}, nil
}

func (m *requestServiceMock) History(ctx context.Context, actor *models.Actor, id string) ([]models.StatusHistoryEntry, error) {
	return nil, m.err
}

func testContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

var parksClaims = &models.JWTClaims{UserID: "u-1", Name: "Ayşe", Role: models.RoleMember, Department: "Parks"}

func TestRequestHandlerListParsesFilters(t *testing.T) {
	mock := &requestServiceMock{listResp: []models.Request{{ID: "r-1"}}}
	h := NewRequestHandler(mock)

	c, w := testContext(http.MethodGet, "/requests?status=normal,urgent&status=low&search=%20bench%20&page=2&limit=5", nil, parksClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.RequestStatus{"normal", "urgent", "low"}, mock.lastFilter.Status)
	assert.Equal(t, "bench", mock.lastFilter.Search)
	assert.Equal(t, 2, mock.lastFilter.Page)
	assert.Equal(t, 5, mock.lastFilter.PageSize)
	assert.Equal(t, "Parks", mock.lastActor.Department)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "pagination")
}

func TestRequestHandlerRequiresActor(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{})
	c, w := testContext(http.MethodGet, "/requests", nil, nil)
	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	mock := &requestServiceMock{}
	h := NewRequestHandler(mock)
	c, w := testContext(http.MethodPost, "/requests", []byte(`{"name":`), parksClaims)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, mock.lastActor)
}

func TestRequestHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{appErrors.Clone(appErrors.ErrNotFound, "request not found"), http.StatusNotFound},
		{appErrors.ErrForbidden, http.StatusForbidden},
		{appErrors.ErrInconsistentState, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewRequestHandler(&requestServiceMock{err: tc.err})
		c, w := testContext(http.MethodPatch, "/requests/r-1/status", []byte(`{"status":"URGENT","comment":"crew"}`), parksClaims)
		c.Params = gin.Params{{Key: "id", Value: "r-1"}}
		h.UpdateStatus(c)
		assert.Equal(t, tc.want, w.Code)
	}
}

func TestRequestHandlerBulkDelete(t *testing.T) {
	mock := &requestServiceMock{}
	h := NewRequestHandler(mock)
	c, w := testContext(http.MethodPost, "/requests/bulk-delete", []byte(`{"ids":["r-1","r-2"]}`), parksClaims)
	h.BulkDelete(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"r-1", "r-2"}, mock.lastBulk.IDs)
	assert.JSONEq(t, `{"data":{"deleted":["r-1","r-2"]}}`, w.Body.String())
}

func TestRequestHandlerDelete(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{})
	c, w := testContext(http.MethodDelete, "/requests/r-1", nil, parksClaims)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	h.Delete(c)
	// gin defers writing the status header for bodiless responses.
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestHandlerUpdateDepartmentMoveIsForbidden(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "only privileged users can move a request to another department")})
	c, w := testContext(http.MethodPut, "/requests/r-1", []byte(`{"department":"Roads"}`), parksClaims)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	h.Update(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "move a request to another department")
}
