package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type subjectGroupServiceMock struct {
	filter    models.SubjectGroupFilter
	createReq dto.CreateSubjectGroupRequest
	deleteErr error
}

func (m *subjectGroupServiceMock) List(ctx context.Context, filter models.SubjectGroupFilter) ([]models.SubjectGroup, error) {
	m.filter = filter
	return []models.SubjectGroup{}, nil
}

func (m *subjectGroupServiceMock) Get(ctx context.Context, id string) (*models.SubjectGroup, error) {
	return &models.SubjectGroup{ID: id}, nil
}

func (m *subjectGroupServiceMock) Create(ctx context.Context, req dto.CreateSubjectGroupRequest, actorID string) (*models.SubjectGroup, error) {
	m.createReq = req
	return &models.SubjectGroup{ID: "g1", Name: req.Name}, nil
}

func (m *subjectGroupServiceMock) Update(ctx context.Context, id string, req dto.UpdateSubjectGroupRequest) (*models.SubjectGroup, error) {
	return &models.SubjectGroup{ID: id}, nil
}

func (m *subjectGroupServiceMock) Delete(ctx context.Context, id string) error {
	return m.deleteErr
}

type gradingScaleServiceMock struct {
	createReq dto.CreateGradingScaleRequest
}

func (m *gradingScaleServiceMock) List(ctx context.Context) ([]models.GradingScale, error) {
	return []models.GradingScale{}, nil
}

func (m *gradingScaleServiceMock) Get(ctx context.Context, id string) (*models.GradingScale, error) {
	return &models.GradingScale{ID: id}, nil
}

func (m *gradingScaleServiceMock) Create(ctx context.Context, req dto.CreateGradingScaleRequest, actorID string) (*models.GradingScale, error) {
	m.createReq = req
	return &models.GradingScale{ID: "s1", Name: req.Name, GradeConfig: req.GradeConfig}, nil
}

func (m *gradingScaleServiceMock) Update(ctx context.Context, id string, req dto.UpdateGradingScaleRequest) (*models.GradingScale, error) {
	return &models.GradingScale{ID: id}, nil
}

func (m *gradingScaleServiceMock) Delete(ctx context.Context, id string) error {
	return nil
}

func TestSubjectGroupHandlerCreateAndList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &subjectGroupServiceMock{}
	h := NewSubjectGroupHandler(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/subject-groups", bytes.NewBufferString(`{"name":"Core","subjectIds":["a","b"]}`))
	req.Header.Set("Content-Type", "application/json")
	h.Create(teacherContext(w, req))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"a", "b"}, svc.createReq.SubjectIDs)

	w = httptest.NewRecorder()
	h.List(teacherContext(w, httptest.NewRequest(http.MethodGet, "/subject-groups?term=1&search=core", nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", svc.filter.Term)
	assert.Equal(t, "core", svc.filter.Search)
}

func TestSubjectGroupHandlerDeleteInUse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSubjectGroupHandler(&subjectGroupServiceMock{deleteErr: appErrors.Clone(appErrors.ErrInUse, "in use")})

	w := httptest.NewRecorder()
	h.Delete(teacherContext(w, httptest.NewRequest(http.MethodDelete, "/subject-groups/g1", nil), gin.Param{Key: "id", Value: "g1"}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "IN_USE")
}

func TestGradingScaleHandlerCreateAcceptsStringEncodedConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &gradingScaleServiceMock{}
	h := NewGradingScaleHandler(svc)

	w := httptest.NewRecorder()
	body := `{"name":"PF","gradeConfig":"[{\"min\":0,\"max\":49,\"grade\":\"F\"},{\"min\":50,\"max\":100,\"grade\":\"P\"}]"}`
	req := httptest.NewRequest(http.MethodPost, "/grading-scales", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.Create(teacherContext(w, req))

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, svc.createReq.GradeConfig, 2)
	assert.Equal(t, "P", svc.createReq.GradeConfig[1].Grade)
}
