package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

const gradingScaleColumns = `id, name, grade_config, is_default, created_by, created_at, updated_at`

// GradingScaleRepository persists grading scales.
type GradingScaleRepository struct {
	db *sqlx.DB
}

// NewGradingScaleRepository constructs the repository.
func NewGradingScaleRepository(db *sqlx.DB) *GradingScaleRepository {
	return &GradingScaleRepository{db: db}
}

// List returns every scale, default first.
func (r *GradingScaleRepository) List(ctx context.Context) ([]models.GradingScale, error) {
	query := `SELECT ` + gradingScaleColumns + ` FROM grading_scales ORDER BY is_default DESC, name ASC`
	var scales []models.GradingScale
	if err := r.db.SelectContext(ctx, &scales, query); err != nil {
		return nil, fmt.Errorf("list grading scales: %w", err)
	}
	return scales, nil
}

// FindByID returns a grading scale with its decoded configuration.
func (r *GradingScaleRepository) FindByID(ctx context.Context, id string) (*models.GradingScale, error) {
	query := `SELECT ` + gradingScaleColumns + ` FROM grading_scales WHERE id = $1`
	var scale models.GradingScale
	if err := r.db.GetContext(ctx, &scale, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grading scale: %w", err)
	}
	return &scale, nil
}

// Create inserts a scale, clearing the default flag elsewhere when it is the new default.
func (r *GradingScaleRepository) Create(ctx context.Context, scale *models.GradingScale) error {
	return r.write(ctx, scale, `
INSERT INTO grading_scales (id, name, grade_config, is_default, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scale.ID, scale.Name, scale.GradeConfig, scale.IsDefault, scale.CreatedBy, scale.CreatedAt, scale.UpdatedAt)
}

// Update overwrites a scale.
func (r *GradingScaleRepository) Update(ctx context.Context, scale *models.GradingScale) error {
	return r.write(ctx, scale, `
UPDATE grading_scales
SET name = $2, grade_config = $3, is_default = $4, updated_at = $5
WHERE id = $1`,
		scale.ID, scale.Name, scale.GradeConfig, scale.IsDefault, scale.UpdatedAt)
}

func (r *GradingScaleRepository) write(ctx context.Context, scale *models.GradingScale, query string, args ...interface{}) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grading scale tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if scale.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE grading_scales SET is_default = FALSE WHERE is_default = TRUE AND id <> $1`, scale.ID); err != nil {
			return fmt.Errorf("clear default grading scale: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write grading scale: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grading scale: %w", err)
	}
	return nil
}

// Delete removes a scale.
func (r *GradingScaleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grading_scales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grading scale: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBatchReferences counts result batches using the scale.
func (r *GradingScaleRepository) CountBatchReferences(ctx context.Context, id string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM result_batches WHERE grading_scale_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count grading scale references: %w", err)
	}
	return total, nil
}
