package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

type resultQueryService interface {
	GetClassResults(ctx context.Context, classroomID string, period models.ResultPeriod) ([]models.ResultView, error)
	GetStudentReportCard(ctx context.Context, studentID, classroomID string, period models.ResultPeriod, actor *models.JWTClaims) (*models.ReportCard, error)
	RenderReportCardPDF(card *models.ReportCard) ([]byte, error)
}

// ResultQueryHandler serves stored results.
type ResultQueryHandler struct {
	service resultQueryService
}

// NewResultQueryHandler builds the handler.
func NewResultQueryHandler(service resultQueryService) *ResultQueryHandler {
	return &ResultQueryHandler{service: service}
}

// ClassResults godoc
// @Summary List the results of a classroom period
// @Tags Results
// @Produce json
// @Param classroomId path string true "Classroom ID"
// @Param academicYear query string false "Academic year (defaults to the classroom's)"
// @Param term query string false "Term (defaults to the classroom's)"
// @Success 200 {object} response.Envelope
// @Router /results/classrooms/{classroomId} [get]
func (h *ResultQueryHandler) ClassResults(c *gin.Context) {
	var period models.ResultPeriod
	if err := c.ShouldBindQuery(&period); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	views, err := h.service.GetClassResults(c.Request.Context(), c.Param("classroomId"), period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// ReportCard godoc
// @Summary Get a student's report card
// @Tags Results
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classroomId query string true "Classroom ID"
// @Param academicYear query string false "Academic year"
// @Param term query string false "Term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /results/students/{studentId}/report-card [get]
func (h *ResultQueryHandler) ReportCard(c *gin.Context) {
	card, ok := h.loadCard(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// ReportCardPDF godoc
// @Summary Download a student's report card as PDF
// @Tags Results
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param classroomId query string true "Classroom ID"
// @Param academicYear query string false "Academic year"
// @Param term query string false "Term"
// @Success 200 {file} file
// @Router /results/students/{studentId}/report-card.pdf [get]
func (h *ResultQueryHandler) ReportCardPDF(c *gin.Context) {
	card, ok := h.loadCard(c)
	if !ok {
		return
	}
	data, err := h.service.RenderReportCardPDF(card)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("report-card-%s-%s.pdf", card.Student.ID, card.Period.Term)
	response.Attachment(c, filename, "application/pdf", data)
}

func (h *ResultQueryHandler) loadCard(c *gin.Context) (*models.ReportCard, bool) {
	claims := requireClaims(c)
	if claims == nil {
		return nil, false
	}
	var period models.ResultPeriod
	if err := c.ShouldBindQuery(&period); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return nil, false
	}
	card, err := h.service.GetStudentReportCard(c.Request.Context(), c.Param("studentId"), c.Query("classroomId"), period, claims)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return card, true
}
