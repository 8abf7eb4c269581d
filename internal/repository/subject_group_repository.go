package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

const subjectGroupColumns = `id, name, academic_session, term, created_by, created_at, updated_at`

// SubjectGroupRepository persists subject groups and their membership.
type SubjectGroupRepository struct {
	db *sqlx.DB
}

// NewSubjectGroupRepository constructs the repository.
func NewSubjectGroupRepository(db *sqlx.DB) *SubjectGroupRepository {
	return &SubjectGroupRepository{db: db}
}

// List returns groups with their subjects.
func (r *SubjectGroupRepository) List(ctx context.Context, filter models.SubjectGroupFilter) ([]models.SubjectGroup, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + subjectGroupColumns + ` FROM subject_groups WHERE 1=1`)
	var args []interface{}
	if filter.AcademicSession != "" {
		args = append(args, filter.AcademicSession)
		fmt.Fprintf(&query, " AND academic_session = $%d", len(args))
	}
	if filter.Term != "" {
		args = append(args, filter.Term)
		fmt.Fprintf(&query, " AND term = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		fmt.Fprintf(&query, " AND LOWER(name) LIKE $%d", len(args))
	}
	query.WriteString(" ORDER BY name ASC")

	var groups []models.SubjectGroup
	if err := r.db.SelectContext(ctx, &groups, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list subject groups: %w", err)
	}
	for i := range groups {
		subjects, err := r.ListSubjects(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Subjects = subjects
	}
	return groups, nil
}

// FindByID returns a group and its subjects in membership order.
func (r *SubjectGroupRepository) FindByID(ctx context.Context, id string) (*models.SubjectGroup, error) {
	query := `SELECT ` + subjectGroupColumns + ` FROM subject_groups WHERE id = $1`
	var group models.SubjectGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject group: %w", err)
	}
	subjects, err := r.ListSubjects(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Subjects = subjects
	return &group, nil
}

// ListSubjects returns the members of a group in the order they were assigned.
func (r *SubjectGroupRepository) ListSubjects(ctx context.Context, groupID string) ([]models.Subject, error) {
	const query = `
SELECT s.id, s.name, s.code, s.category, s.is_active
FROM subject_group_subjects sgs
JOIN subjects s ON s.id = sgs.subject_id
WHERE sgs.subject_group_id = $1
ORDER BY sgs.position ASC`
	subjects := []models.Subject{}
	if err := r.db.SelectContext(ctx, &subjects, query, groupID); err != nil {
		return nil, fmt.Errorf("list subject group members: %w", err)
	}
	return subjects, nil
}

// Create inserts the group and its membership in one transaction.
func (r *SubjectGroupRepository) Create(ctx context.Context, group *models.SubjectGroup, subjectIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subject group tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `
INSERT INTO subject_groups (id, name, academic_session, term, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query, group.ID, group.Name, group.AcademicSession, group.Term, group.CreatedBy, group.CreatedAt, group.UpdatedAt); err != nil {
		return fmt.Errorf("insert subject group: %w", err)
	}
	if err := insertMembers(ctx, tx, group.ID, subjectIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subject group: %w", err)
	}
	return nil
}

// Update writes the group columns and, when subjectIDs is non-nil, replaces the
// whole membership set.
func (r *SubjectGroupRepository) Update(ctx context.Context, group *models.SubjectGroup, subjectIDs *[]string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subject group tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `
UPDATE subject_groups
SET name = $2, academic_session = $3, term = $4, updated_at = $5
WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, group.ID, group.Name, group.AcademicSession, group.Term, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subject group: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	if subjectIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subject_group_subjects WHERE subject_group_id = $1`, group.ID); err != nil {
			return fmt.Errorf("clear subject group members: %w", err)
		}
		if err := insertMembers(ctx, tx, group.ID, *subjectIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subject group: %w", err)
	}
	return nil
}

// Delete removes a group. Membership rows cascade.
func (r *SubjectGroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subject_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subject group: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBatchReferences counts result batches pointing at the group.
func (r *SubjectGroupRepository) CountBatchReferences(ctx context.Context, id string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM result_batches WHERE subject_group_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count subject group references: %w", err)
	}
	return total, nil
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, groupID string, subjectIDs []string) error {
	const query = `INSERT INTO subject_group_subjects (subject_group_id, subject_id, position) VALUES ($1, $2, $3)`
	for i, subjectID := range subjectIDs {
		if _, err := tx.ExecContext(ctx, query, groupID, subjectID, i); err != nil {
			return fmt.Errorf("insert subject group member: %w", err)
		}
	}
	return nil
}
