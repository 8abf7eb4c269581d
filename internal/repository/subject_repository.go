package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// SubjectRepository reads the subject catalogue.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository returns a new repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByIDs returns the subjects matching ids. Missing ids are simply absent.
func (r *SubjectRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Subject, error) {
	if len(ids) == 0 {
		return []models.Subject{}, nil
	}
	const query = `SELECT id, name, code, category, is_active FROM subjects WHERE id = ANY($1)`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find subjects by ids: %w", err)
	}
	return subjects, nil
}

// FindActiveByCodes returns active subjects keyed by upper-cased code.
func (r *SubjectRepository) FindActiveByCodes(ctx context.Context, codes []string) (map[string]models.Subject, error) {
	result := make(map[string]models.Subject, len(codes))
	if len(codes) == 0 {
		return result, nil
	}
	normalized := make([]string, len(codes))
	for i, code := range codes {
		normalized[i] = strings.ToUpper(strings.TrimSpace(code))
	}
	const query = `SELECT id, name, code, category, is_active FROM subjects WHERE UPPER(code) = ANY($1) AND is_active = TRUE`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, pq.Array(normalized)); err != nil {
		return nil, fmt.Errorf("find active subjects by code: %w", err)
	}
	for _, subject := range subjects {
		result[strings.ToUpper(subject.Code)] = subject
	}
	return result, nil
}
