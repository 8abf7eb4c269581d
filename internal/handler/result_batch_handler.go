package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/service"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

const uploadField = "file"

type resultBatchService interface {
	Create(ctx context.Context, req dto.CreateResultBatchRequest, actorID string) (*models.ResultBatch, error)
	Get(ctx context.Context, id string) (*models.ResultBatch, error)
	List(ctx context.Context, query dto.ResultBatchListQuery) ([]models.ResultBatch, *models.Pagination, error)
	Publish(ctx context.Context, id, actorID string) (*models.ResultBatch, error)
	OverrideStatus(ctx context.Context, id string, req dto.UpdateBatchStatusRequest, actor *models.JWTClaims) (*models.ResultBatch, error)
	UpdateSignatures(ctx context.Context, id string, req dto.UpdateBatchSignaturesRequest, actorID string) (*models.ResultBatch, error)
	UploadSignature(ctx context.Context, id string, kind dto.SignatureKind, upload service.SignatureUpload, actorID string) (*models.ResultBatch, error)
	DownloadTemplate(ctx context.Context, id string) (*service.TemplateFile, error)
	Delete(ctx context.Context, id, actorID string) error
}

type resultImporter interface {
	Import(ctx context.Context, batchID string, upload service.ImportUpload, actorID string) (*models.ImportSummary, error)
}

// ResultBatchHandler exposes result batch lifecycle and import endpoints.
type ResultBatchHandler struct {
	batches        resultBatchService
	importer       resultImporter
	maxUploadBytes int64
}

// NewResultBatchHandler builds the handler. Uploads larger than maxUploadBytes are rejected.
func NewResultBatchHandler(batches resultBatchService, importer resultImporter, maxUploadBytes int64) *ResultBatchHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &ResultBatchHandler{batches: batches, importer: importer, maxUploadBytes: maxUploadBytes}
}

// Create godoc
// @Summary Create a result batch
// @Tags Result Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateResultBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /result-batches [post]
func (h *ResultBatchHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateResultBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid result batch payload"))
		return
	}
	batch, err := h.batches.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// List godoc
// @Summary List result batches
// @Tags Result Batches
// @Produce json
// @Param classroomId query string false "Classroom ID"
// @Param academicYear query string false "Academic year"
// @Param term query string false "Term"
// @Param status query string false "draft, processing, completed, failed or published"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /result-batches [get]
func (h *ResultBatchHandler) List(c *gin.Context) {
	var query dto.ResultBatchListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	items, page, err := h.batches.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &response.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: page.TotalCount})
}

// Get godoc
// @Summary Get a result batch
// @Tags Result Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /result-batches/{id} [get]
func (h *ResultBatchHandler) Get(c *gin.Context) {
	batch, err := h.batches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Upload godoc
// @Summary Import a results CSV into a batch
// @Tags Result Batches
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param file formData file true "Results CSV"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 408 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /result-batches/{id}/upload [post]
func (h *ResultBatchHandler) Upload(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	header, file, ok := h.formFile(c)
	if !ok {
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "only .csv files are accepted"))
		return
	}

	summary, err := h.importer.Import(c.Request.Context(), c.Param("id"), service.ImportUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Publish godoc
// @Summary Publish a completed batch
// @Tags Result Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /result-batches/{id}/publish [post]
func (h *ResultBatchHandler) Publish(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	batch, err := h.batches.Publish(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// OverrideStatus godoc
// @Summary Override a batch status (administrators only)
// @Tags Result Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.UpdateBatchStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /result-batches/{id}/status [patch]
func (h *ResultBatchHandler) OverrideStatus(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateBatchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid status payload"))
		return
	}
	batch, err := h.batches.OverrideStatus(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// UpdateSignatures godoc
// @Summary Update signature names and image URLs
// @Tags Result Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.UpdateBatchSignaturesRequest true "Signature fields"
// @Success 200 {object} response.Envelope
// @Router /result-batches/{id}/signatures [patch]
func (h *ResultBatchHandler) UpdateSignatures(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateBatchSignaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid signature payload"))
		return
	}
	batch, err := h.batches.UpdateSignatures(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// UploadSignature godoc
// @Summary Upload a teacher or principal signature image
// @Tags Result Batches
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param kind path string true "teacher or principal"
// @Param file formData file true "Signature image"
// @Success 200 {object} response.Envelope
// @Router /result-batches/{id}/signatures/{kind} [post]
func (h *ResultBatchHandler) UploadSignature(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	header, file, ok := h.formFile(c)
	if !ok {
		return
	}
	defer file.Close()

	batch, err := h.batches.UploadSignature(c.Request.Context(), c.Param("id"), dto.SignatureKind(strings.ToLower(c.Param("kind"))), service.SignatureUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Template godoc
// @Summary Download the CSV import template of a batch
// @Tags Result Batches
// @Produce text/csv
// @Param id path string true "Batch ID"
// @Success 200 {file} file
// @Router /result-batches/{id}/template [get]
func (h *ResultBatchHandler) Template(c *gin.Context) {
	file, err := h.batches.DownloadTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, "text/csv; charset=utf-8", file.Content)
}

// Delete godoc
// @Summary Delete a batch and every result of its period
// @Tags Result Batches
// @Param id path string true "Batch ID"
// @Success 204
// @Router /result-batches/{id} [delete]
func (h *ResultBatchHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.batches.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *ResultBatchHandler) formFile(c *gin.Context) (*multipart.FileHeader, multipart.File, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes)))
			return nil, nil, false
		}
		response.Error(c, bindError(err, "a file is required in form field \""+uploadField+"\""))
		return nil, nil, false
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file"))
		return nil, nil, false
	}
	return header, file, true
}
