package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type gradingScaleStore interface {
	List(ctx context.Context) ([]models.GradingScale, error)
	FindByID(ctx context.Context, id string) (*models.GradingScale, error)
	Create(ctx context.Context, scale *models.GradingScale) error
	Update(ctx context.Context, scale *models.GradingScale) error
	Delete(ctx context.Context, id string) error
	CountBatchReferences(ctx context.Context, id string) (int, error)
}

// GradingScaleService manages grading scales.
type GradingScaleService struct {
	repo      gradingScaleStore
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradingScaleService constructs the service.
func NewGradingScaleService(repo gradingScaleStore, validate *validator.Validate, logger *zap.Logger) *GradingScaleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingScaleService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns every grading scale.
func (s *GradingScaleService) List(ctx context.Context) ([]models.GradingScale, error) {
	scales, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grading scales")
	}
	return scales, nil
}

// Get returns one grading scale.
func (s *GradingScaleService) Get(ctx context.Context, id string) (*models.GradingScale, error) {
	scale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "grading scale")
	}
	return scale, nil
}

// Create stores a scale after checking its ranges.
func (s *GradingScaleService) Create(ctx context.Context, req dto.CreateGradingScaleRequest, actorID string) (*models.GradingScale, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading scale payload")
	}
	if err := req.GradeConfig.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	now := s.now()
	scale := &models.GradingScale{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		GradeConfig: req.GradeConfig,
		IsDefault:   req.IsDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actorID != "" {
		scale.CreatedBy = &actorID
	}
	if err := s.repo.Create(ctx, scale); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grading scale")
	}
	return scale, nil
}

// Update applies a partial update.
func (s *GradingScaleService) Update(ctx context.Context, id string, req dto.UpdateGradingScaleRequest) (*models.GradingScale, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading scale payload")
	}
	scale, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		scale.Name = strings.TrimSpace(*req.Name)
	}
	if req.GradeConfig != nil {
		if err := req.GradeConfig.Validate(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		scale.GradeConfig = req.GradeConfig
	}
	if req.IsDefault != nil {
		scale.IsDefault = *req.IsDefault
	}
	scale.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, scale); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading scale not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grading scale")
	}
	return scale, nil
}

// Delete removes a scale no batch references.
func (s *GradingScaleService) Delete(ctx context.Context, id string) error {
	refs, err := s.repo.CountBatchReferences(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grading scale usage")
	}
	if refs > 0 {
		return appErrors.Clone(appErrors.ErrInUse, fmt.Sprintf("grading scale is used by %d result batch(es)", refs))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grading scale not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grading scale")
	}
	s.logger.Info("grading scale deleted", zap.String("grading_scale_id", id))
	return nil
}
