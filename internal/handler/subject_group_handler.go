package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

type subjectGroupService interface {
	List(ctx context.Context, filter models.SubjectGroupFilter) ([]models.SubjectGroup, error)
	Get(ctx context.Context, id string) (*models.SubjectGroup, error)
	Create(ctx context.Context, req dto.CreateSubjectGroupRequest, actorID string) (*models.SubjectGroup, error)
	Update(ctx context.Context, id string, req dto.UpdateSubjectGroupRequest) (*models.SubjectGroup, error)
	Delete(ctx context.Context, id string) error
}

// SubjectGroupHandler manages subject groups.
type SubjectGroupHandler struct {
	service subjectGroupService
}

// NewSubjectGroupHandler builds the handler.
func NewSubjectGroupHandler(service subjectGroupService) *SubjectGroupHandler {
	return &SubjectGroupHandler{service: service}
}

// List godoc
// @Summary List subject groups
// @Tags Subject Groups
// @Produce json
// @Param academicSession query string false "Academic session"
// @Param term query string false "Term"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /subject-groups [get]
func (h *SubjectGroupHandler) List(c *gin.Context) {
	filter := models.SubjectGroupFilter{
		AcademicSession: c.Query("academicSession"),
		Term:            c.Query("term"),
		Search:          c.Query("search"),
	}
	groups, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get a subject group
// @Tags Subject Groups
// @Produce json
// @Param id path string true "Subject group ID"
// @Success 200 {object} response.Envelope
// @Router /subject-groups/{id} [get]
func (h *SubjectGroupHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create a subject group
// @Tags Subject Groups
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubjectGroupRequest true "Subject group"
// @Success 201 {object} response.Envelope
// @Router /subject-groups [post]
func (h *SubjectGroupHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateSubjectGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid subject group payload"))
		return
	}
	group, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update a subject group
// @Tags Subject Groups
// @Accept json
// @Produce json
// @Param id path string true "Subject group ID"
// @Param payload body dto.UpdateSubjectGroupRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /subject-groups/{id} [put]
func (h *SubjectGroupHandler) Update(c *gin.Context) {
	var req dto.UpdateSubjectGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid subject group payload"))
		return
	}
	group, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete an unused subject group
// @Tags Subject Groups
// @Param id path string true "Subject group ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /subject-groups/{id} [delete]
func (h *SubjectGroupHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
