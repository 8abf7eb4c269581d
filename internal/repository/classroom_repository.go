package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// ClassroomRepository reads classrooms and their rosters.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// FindByID returns the classroom and its current academic period.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `SELECT id, name, academic_year, academic_term FROM classrooms WHERE id = $1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom: %w", err)
	}
	return &classroom, nil
}

// ListStudentIDs returns the ids of every student enrolled in the classroom.
func (r *ClassroomRepository) ListStudentIDs(ctx context.Context, classroomID string) ([]string, error) {
	const query = `SELECT student_id FROM classroom_students WHERE classroom_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classroomID); err != nil {
		return nil, fmt.Errorf("list classroom students: %w", err)
	}
	return ids, nil
}

// ListStudents returns enrolled students ordered by name.
func (r *ClassroomRepository) ListStudents(ctx context.Context, classroomID string) ([]models.User, error) {
	const query = `
SELECT u.id, u.email, u.first_name, u.last_name, u.role
FROM classroom_students cs
JOIN users u ON u.id = cs.student_id
WHERE cs.classroom_id = $1
ORDER BY u.last_name ASC, u.first_name ASC`
	var students []models.User
	if err := r.db.SelectContext(ctx, &students, query, classroomID); err != nil {
		return nil, fmt.Errorf("list classroom roster: %w", err)
	}
	return students, nil
}

// CountStudents returns the roster size.
func (r *ClassroomRepository) CountStudents(ctx context.Context, classroomID string) (int, error) {
	const query = `SELECT COUNT(*) FROM classroom_students WHERE classroom_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, classroomID); err != nil {
		return 0, fmt.Errorf("count classroom students: %w", err)
	}
	return total, nil
}

// IsEnrolled reports whether the student belongs to the classroom.
func (r *ClassroomRepository) IsEnrolled(ctx context.Context, classroomID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM classroom_students WHERE classroom_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classroomID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}
