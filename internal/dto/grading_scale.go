package dto

import "github.com/noah-isme/sma-results-api/internal/models"

// CreateGradingScaleRequest defines the payload for a new grading scale.
type CreateGradingScaleRequest struct {
	Name        string             `json:"name" validate:"required,max=255"`
	GradeConfig models.GradeConfig `json:"gradeConfig" validate:"required,min=1"`
	IsDefault   bool               `json:"isDefault"`
}

// UpdateGradingScaleRequest partially updates a grading scale.
type UpdateGradingScaleRequest struct {
	Name        *string            `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	GradeConfig models.GradeConfig `json:"gradeConfig,omitempty"`
	IsDefault   *bool              `json:"isDefault,omitempty"`
}
