package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// StudentResultRepository persists per-subject student results.
type StudentResultRepository struct {
	db *sqlx.DB
}

// NewStudentResultRepository constructs the repository.
func NewStudentResultRepository(db *sqlx.DB) *StudentResultRepository {
	return &StudentResultRepository{db: db}
}

// ApplyImport upserts every row by natural key and writes the completed batch
// state in a single transaction. Conflicting rows are overwritten, never summed.
func (r *StudentResultRepository) ApplyImport(ctx context.Context, batchID string, rows []models.StudentResult, done models.BatchCompletion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if len(rows) > 0 {
		stmt, err := tx.PreparexContext(ctx, `
INSERT INTO student_results (
	id, classroom_id, student_id, subject_id, academic_year, term,
	ca_score, exam_score, total_score, grade, remark, teacher_id, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
ON CONFLICT (classroom_id, student_id, subject_id, academic_year, term)
DO UPDATE SET
	ca_score = EXCLUDED.ca_score,
	exam_score = EXCLUDED.exam_score,
	total_score = EXCLUDED.total_score,
	grade = EXCLUDED.grade,
	remark = EXCLUDED.remark,
	teacher_id = EXCLUDED.teacher_id,
	updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare result upsert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx,
				row.ID, row.ClassroomID, row.StudentID, row.SubjectID, row.AcademicYear, row.Term,
				row.CAScore, row.ExamScore, row.TotalScore, row.Grade, row.Remark, row.TeacherID, row.UpdatedAt,
			); err != nil {
				return fmt.Errorf("upsert student result: %w", err)
			}
		}
	}

	const complete = `
UPDATE result_batches
SET status = $2, total_students = $3, total_subjects = $4, total_results = $5, failed_imports = $6,
	error_log = $7, csv_file_path = $8, processed_at = $9, updated_by = $10, updated_at = $9
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, complete,
		batchID, models.BatchStatusCompleted, done.TotalStudents, done.TotalSubjects, done.TotalResults,
		done.FailedImports, done.ErrorLog, done.CSVFilePath, done.ProcessedAt, done.UpdatedBy,
	); err != nil {
		return fmt.Errorf("complete result batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

const resultViewQuery = `
SELECT
	sr.id, sr.classroom_id, sr.student_id, sr.subject_id, sr.academic_year, sr.term,
	sr.ca_score, sr.exam_score, sr.total_score, sr.grade, sr.remark, sr.teacher_id,
	sr.created_at, sr.updated_at,
	u.email AS student_email, u.first_name AS student_first_name, u.last_name AS student_last_name,
	s.code AS subject_code, s.name AS subject_name
FROM student_results sr
JOIN users u ON u.id = sr.student_id
JOIN subjects s ON s.id = sr.subject_id
WHERE sr.classroom_id = $1 AND sr.academic_year = $2 AND sr.term = $3`

// ListByScope returns every result of a classroom period joined with names.
func (r *StudentResultRepository) ListByScope(ctx context.Context, scope models.ResultScope) ([]models.ResultView, error) {
	query := resultViewQuery + `
ORDER BY u.last_name ASC, u.first_name ASC, s.code ASC`
	results := []models.ResultView{}
	if err := r.db.SelectContext(ctx, &results, query, scope.ClassroomID, scope.AcademicYear, scope.Term); err != nil {
		return nil, fmt.Errorf("list class results: %w", err)
	}
	return results, nil
}

// ListForStudent returns one student's results in a classroom period.
func (r *StudentResultRepository) ListForStudent(ctx context.Context, studentID string, scope models.ResultScope) ([]models.ResultView, error) {
	query := resultViewQuery + ` AND sr.student_id = $4
ORDER BY s.code ASC`
	results := []models.ResultView{}
	if err := r.db.SelectContext(ctx, &results, query, scope.ClassroomID, scope.AcademicYear, scope.Term, studentID); err != nil {
		return nil, fmt.Errorf("list student results: %w", err)
	}
	return results, nil
}

// CountByScope counts the stored results of a classroom period.
func (r *StudentResultRepository) CountByScope(ctx context.Context, scope models.ResultScope) (int, error) {
	const query = `SELECT COUNT(*) FROM student_results WHERE classroom_id = $1 AND academic_year = $2 AND term = $3`
	var total int
	if err := r.db.GetContext(ctx, &total, query, scope.ClassroomID, scope.AcademicYear, scope.Term); err != nil {
		return 0, fmt.Errorf("count scope results: %w", err)
	}
	return total, nil
}
