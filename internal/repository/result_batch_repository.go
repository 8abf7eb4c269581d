package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

const resultBatchColumns = `id, batch_name, batch_code, classroom_id, academic_year, term, grading_scale_id,
	subject_group_id, status, csv_file_path, error_log, total_students, total_subjects, total_results,
	failed_imports, processed_at, published_at, created_by, updated_by, teacher_name, principal_name,
	teacher_signature_url, principal_signature_url, created_at, updated_at`

// ResultBatchRepository persists result batches and their per-scope code sequence.
type ResultBatchRepository struct {
	db *sqlx.DB
}

// NewResultBatchRepository constructs the repository.
func NewResultBatchRepository(db *sqlx.DB) *ResultBatchRepository {
	return &ResultBatchRepository{db: db}
}

// NextSequence atomically increments and returns the batch counter of a scope.
func (r *ResultBatchRepository) NextSequence(ctx context.Context, scope models.ResultScope) (int, error) {
	const query = `
INSERT INTO result_batch_sequences (classroom_id, academic_year, term, last_seq)
VALUES ($1, $2, $3, 1)
ON CONFLICT (classroom_id, academic_year, term)
DO UPDATE SET last_seq = result_batch_sequences.last_seq + 1
RETURNING last_seq`
	var seq int
	if err := r.db.GetContext(ctx, &seq, query, scope.ClassroomID, scope.AcademicYear, scope.Term); err != nil {
		return 0, fmt.Errorf("next batch sequence: %w", err)
	}
	return seq, nil
}

// Create inserts a new batch. Unique violations on batch_code are returned wrapped.
func (r *ResultBatchRepository) Create(ctx context.Context, batch *models.ResultBatch) error {
	const query = `
INSERT INTO result_batches (
	id, batch_name, batch_code, classroom_id, academic_year, term, grading_scale_id, subject_group_id,
	status, error_log, total_students, total_subjects, total_results, failed_imports,
	created_by, teacher_name, principal_name, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.BatchName, batch.BatchCode, batch.ClassroomID, batch.AcademicYear, batch.Term,
		batch.GradingScaleID, batch.SubjectGroupID, batch.Status, batch.ErrorLog,
		batch.TotalStudents, batch.TotalSubjects, batch.TotalResults, batch.FailedImports,
		batch.CreatedBy, batch.TeacherName, batch.PrincipalName, batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result batch: %w", err)
	}
	return nil
}

// FindByID returns a batch.
func (r *ResultBatchRepository) FindByID(ctx context.Context, id string) (*models.ResultBatch, error) {
	query := `SELECT ` + resultBatchColumns + ` FROM result_batches WHERE id = $1`
	var batch models.ResultBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find result batch: %w", err)
	}
	return &batch, nil
}

// List returns a page of batches and the total count for the filter.
func (r *ResultBatchRepository) List(ctx context.Context, filter models.ResultBatchFilter) ([]models.ResultBatch, int, error) {
	var conditions []string
	var args []interface{}
	if filter.ClassroomID != "" {
		args = append(args, filter.ClassroomID)
		conditions = append(conditions, fmt.Sprintf("classroom_id = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if filter.Term != "" {
		args = append(args, filter.Term)
		conditions = append(conditions, fmt.Sprintf("term = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM result_batches`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count result batches: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT %s FROM result_batches%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		resultBatchColumns, where, len(args)-1, len(args))

	batches := []models.ResultBatch{}
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list result batches: %w", err)
	}
	return batches, total, nil
}

// UpdateStatus sets the status in its own statement, visible to readers immediately.
func (r *ResultBatchRepository) UpdateStatus(ctx context.Context, id string, status models.BatchStatus, updatedBy string, at time.Time) error {
	const query = `UPDATE result_batches SET status = $2, updated_by = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, updatedBy, at)
	if err != nil {
		return fmt.Errorf("update result batch status: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFailed records a fatal import error.
func (r *ResultBatchRepository) MarkFailed(ctx context.Context, id string, errorLog models.ImportErrors, updatedBy string, at time.Time) error {
	const query = `
UPDATE result_batches
SET status = $2, error_log = $3, processed_at = $4, updated_by = $5, updated_at = $4
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.BatchStatusFailed, errorLog, at, updatedBy); err != nil {
		return fmt.Errorf("mark result batch failed: %w", err)
	}
	return nil
}

// Publish moves a completed batch to published. It reports false when the batch
// was not in the completed state at write time.
func (r *ResultBatchRepository) Publish(ctx context.Context, id, updatedBy string, at time.Time) (bool, error) {
	const query = `
UPDATE result_batches
SET status = $2, published_at = $3, updated_by = $4, updated_at = $3
WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.BatchStatusPublished, at, updatedBy, models.BatchStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("publish result batch: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("publish result batch: %w", err)
	}
	return rows > 0, nil
}

// BatchSignatureUpdate lists the signature fields to overwrite. Nil fields are kept.
type BatchSignatureUpdate struct {
	TeacherName           *string
	PrincipalName         *string
	TeacherSignatureURL   *string
	PrincipalSignatureURL *string
	UpdatedBy             string
	UpdatedAt             time.Time
}

// UpdateSignatures applies a partial signature update.
func (r *ResultBatchRepository) UpdateSignatures(ctx context.Context, id string, update BatchSignatureUpdate) error {
	sets := []string{}
	args := []interface{}{id}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.TeacherName != nil {
		add("teacher_name", *update.TeacherName)
	}
	if update.PrincipalName != nil {
		add("principal_name", *update.PrincipalName)
	}
	if update.TeacherSignatureURL != nil {
		add("teacher_signature_url", *update.TeacherSignatureURL)
	}
	if update.PrincipalSignatureURL != nil {
		add("principal_signature_url", *update.PrincipalSignatureURL)
	}
	if len(sets) == 0 {
		return fmt.Errorf("update signatures: no fields")
	}
	add("updated_by", update.UpdatedBy)
	add("updated_at", update.UpdatedAt)

	query := `UPDATE result_batches SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update result batch signatures: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteWithResults removes every result of the batch scope and then the batch,
// in one transaction. It returns the number of results removed.
func (r *ResultBatchRepository) DeleteWithResults(ctx context.Context, batch *models.ResultBatch) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete batch tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`DELETE FROM student_results WHERE classroom_id = $1 AND academic_year = $2 AND term = $3`,
		batch.ClassroomID, batch.AcademicYear, batch.Term)
	if err != nil {
		return 0, fmt.Errorf("delete scope results: %w", err)
	}
	removed, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM result_batches WHERE id = $1`, batch.ID)
	if err != nil {
		return 0, fmt.Errorf("delete result batch: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return 0, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete batch: %w", err)
	}
	return removed, nil
}

// HasPublished reports whether a published batch exists for the scope.
func (r *ResultBatchRepository) HasPublished(ctx context.Context, scope models.ResultScope) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM result_batches
	WHERE classroom_id = $1 AND academic_year = $2 AND term = $3 AND status = $4
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, scope.ClassroomID, scope.AcademicYear, scope.Term, models.BatchStatusPublished); err != nil {
		return false, fmt.Errorf("check published batch: %w", err)
	}
	return exists, nil
}

// LatestForScope returns the most recently created batch of a scope.
func (r *ResultBatchRepository) LatestForScope(ctx context.Context, scope models.ResultScope) (*models.ResultBatch, error) {
	query := `SELECT ` + resultBatchColumns + ` FROM result_batches
WHERE classroom_id = $1 AND academic_year = $2 AND term = $3
ORDER BY created_at DESC LIMIT 1`
	var batch models.ResultBatch
	if err := r.db.GetContext(ctx, &batch, query, scope.ClassroomID, scope.AcademicYear, scope.Term); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest result batch: %w", err)
	}
	return &batch, nil
}
