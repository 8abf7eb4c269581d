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

type subjectGroupStore interface {
	List(ctx context.Context, filter models.SubjectGroupFilter) ([]models.SubjectGroup, error)
	FindByID(ctx context.Context, id string) (*models.SubjectGroup, error)
	Create(ctx context.Context, group *models.SubjectGroup, subjectIDs []string) error
	Update(ctx context.Context, group *models.SubjectGroup, subjectIDs *[]string) error
	Delete(ctx context.Context, id string) error
	CountBatchReferences(ctx context.Context, id string) (int, error)
}

type subjectIDLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Subject, error)
}

// SubjectGroupService manages named subject sets used by result batches.
type SubjectGroupService struct {
	groups    subjectGroupStore
	subjects  subjectIDLookup
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubjectGroupService constructs the service.
func NewSubjectGroupService(groups subjectGroupStore, subjects subjectIDLookup, validate *validator.Validate, logger *zap.Logger) *SubjectGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectGroupService{groups: groups, subjects: subjects, validator: validate, logger: logger, now: time.Now}
}

// List returns subject groups matching the filter.
func (s *SubjectGroupService) List(ctx context.Context, filter models.SubjectGroupFilter) ([]models.SubjectGroup, error) {
	groups, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject groups")
	}
	return groups, nil
}

// Get returns a subject group with its subjects.
func (s *SubjectGroupService) Get(ctx context.Context, id string) (*models.SubjectGroup, error) {
	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "subject group")
	}
	return group, nil
}

// Create validates every subject id and stores the group.
func (s *SubjectGroupService) Create(ctx context.Context, req dto.CreateSubjectGroupRequest, actorID string) (*models.SubjectGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject group payload")
	}
	ids, err := s.checkSubjects(ctx, req.SubjectIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	group := &models.SubjectGroup{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		AcademicSession: req.AcademicSession,
		Term:            req.Term,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if actorID != "" {
		group.CreatedBy = &actorID
	}
	if err := s.groups.Create(ctx, group, ids); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject group")
	}
	return s.Get(ctx, group.ID)
}

// Update applies a partial update. A present subject id list replaces the
// membership as a whole.
func (s *SubjectGroupService) Update(ctx context.Context, id string, req dto.UpdateSubjectGroupRequest) (*models.SubjectGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject group payload")
	}
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		group.Name = strings.TrimSpace(*req.Name)
	}
	if req.AcademicSession != nil {
		group.AcademicSession = req.AcademicSession
	}
	if req.Term != nil {
		group.Term = req.Term
	}
	var members *[]string
	if req.SubjectIDs != nil {
		ids, err := s.checkSubjects(ctx, *req.SubjectIDs)
		if err != nil {
			return nil, err
		}
		members = &ids
	}
	group.UpdatedAt = s.now()

	if err := s.groups.Update(ctx, group, members); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject group")
	}
	return s.Get(ctx, id)
}

// Delete removes a group no batch references.
func (s *SubjectGroupService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	refs, err := s.groups.CountBatchReferences(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject group usage")
	}
	if refs > 0 {
		return appErrors.Clone(appErrors.ErrInUse, fmt.Sprintf("subject group is used by %d result batch(es)", refs))
	}
	if err := s.groups.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject group")
	}
	s.logger.Info("subject group deleted", zap.String("subject_group_id", id))
	return nil
}

// checkSubjects de-duplicates ids keeping first occurrence and fails unless
// every id exists.
func (s *SubjectGroupService) checkSubjects(ctx context.Context, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one subject is required")
	}

	found, err := s.subjects.FindByIDs(ctx, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	known := make(map[string]struct{}, len(found))
	for _, subject := range found {
		known[subject.ID] = struct{}{}
	}
	missing := []string{}
	for _, id := range unique {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown subject ids: "+strings.Join(missing, ", "))
	}
	return unique, nil
}
