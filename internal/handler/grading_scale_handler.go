package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

type gradingScaleService interface {
	List(ctx context.Context) ([]models.GradingScale, error)
	Get(ctx context.Context, id string) (*models.GradingScale, error)
	Create(ctx context.Context, req dto.CreateGradingScaleRequest, actorID string) (*models.GradingScale, error)
	Update(ctx context.Context, id string, req dto.UpdateGradingScaleRequest) (*models.GradingScale, error)
	Delete(ctx context.Context, id string) error
}

// GradingScaleHandler manages grading scales.
type GradingScaleHandler struct {
	service gradingScaleService
}

// NewGradingScaleHandler builds the handler.
func NewGradingScaleHandler(service gradingScaleService) *GradingScaleHandler {
	return &GradingScaleHandler{service: service}
}

// List godoc
// @Summary List grading scales
// @Tags Grading Scales
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading-scales [get]
func (h *GradingScaleHandler) List(c *gin.Context) {
	scales, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scales, nil)
}

// Get godoc
// @Summary Get a grading scale
// @Tags Grading Scales
// @Produce json
// @Param id path string true "Grading scale ID"
// @Success 200 {object} response.Envelope
// @Router /grading-scales/{id} [get]
func (h *GradingScaleHandler) Get(c *gin.Context) {
	scale, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// Create godoc
// @Summary Create a grading scale
// @Tags Grading Scales
// @Accept json
// @Produce json
// @Param payload body dto.CreateGradingScaleRequest true "Grading scale"
// @Success 201 {object} response.Envelope
// @Router /grading-scales [post]
func (h *GradingScaleHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateGradingScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid grading scale payload"))
		return
	}
	scale, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, scale)
}

// Update godoc
// @Summary Update a grading scale
// @Tags Grading Scales
// @Accept json
// @Produce json
// @Param id path string true "Grading scale ID"
// @Param payload body dto.UpdateGradingScaleRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /grading-scales/{id} [put]
func (h *GradingScaleHandler) Update(c *gin.Context) {
	var req dto.UpdateGradingScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid grading scale payload"))
		return
	}
	scale, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// Delete godoc
// @Summary Delete an unused grading scale
// @Tags Grading Scales
// @Param id path string true "Grading scale ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /grading-scales/{id} [delete]
func (h *GradingScaleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
