package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/repository"
	"github.com/noah-isme/sma-results-api/pkg/database"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/export"
	"github.com/noah-isme/sma-results-api/pkg/storage"
)

const (
	defaultBatchCodePrefix = "RB"
	batchCodeAttempts      = 3
	signatureFolder        = "results/signatures"
)

var (
	yearPattern  = regexp.MustCompile(`\d{4}`)
	digitPattern = regexp.MustCompile(`\d+`)
)

type batchStore interface {
	NextSequence(ctx context.Context, scope models.ResultScope) (int, error)
	Create(ctx context.Context, batch *models.ResultBatch) error
	FindByID(ctx context.Context, id string) (*models.ResultBatch, error)
	List(ctx context.Context, filter models.ResultBatchFilter) ([]models.ResultBatch, int, error)
	UpdateStatus(ctx context.Context, id string, status models.BatchStatus, updatedBy string, at time.Time) error
	Publish(ctx context.Context, id, updatedBy string, at time.Time) (bool, error)
	UpdateSignatures(ctx context.Context, id string, update repository.BatchSignatureUpdate) error
	DeleteWithResults(ctx context.Context, batch *models.ResultBatch) (int64, error)
}

type classroomReader interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	CountStudents(ctx context.Context, classroomID string) (int, error)
	ListStudents(ctx context.Context, classroomID string) ([]models.User, error)
}

type scopeResultCounter interface {
	CountByScope(ctx context.Context, scope models.ResultScope) (int, error)
}

type signatureUploader interface {
	UploadFile(ctx context.Context, r io.Reader, filename, mimeType, folder string, metadata map[string]string) (*storage.UploadedFile, error)
}

type artifactScheduler interface {
	ScheduleURLs(ctx context.Context, urls ...*string) int
}

type templateWriter interface {
	Render(data export.Table) ([]byte, error)
}

// SignatureUpload is an uploaded signature image.
type SignatureUpload struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// TemplateFile is a rendered CSV template.
type TemplateFile struct {
	Filename string
	Content  []byte
}

// ResultBatchDeps groups the collaborators of ResultBatchService.
type ResultBatchDeps struct {
	Batches    batchStore
	Classrooms classroomReader
	Groups     subjectGroupReader
	Scales     gradingScaleReader
	Results    scopeResultCounter
	Signatures signatureUploader
	Cleanup    artifactScheduler
	Exporter   templateWriter
	Cache      *CacheService
	Validator  *validator.Validate
	Logger     *zap.Logger
	CodePrefix string
}

// ResultBatchService owns the batch lifecycle and its stored artifacts.
type ResultBatchService struct {
	batches    batchStore
	classrooms classroomReader
	groups     subjectGroupReader
	scales     gradingScaleReader
	results    scopeResultCounter
	signatures signatureUploader
	cleanup    artifactScheduler
	exporter   templateWriter
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	prefix     string
	now        func() time.Time
}

// NewResultBatchService builds the lifecycle manager.
func NewResultBatchService(deps ResultBatchDeps) *ResultBatchService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewCSVExporter()
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.CodePrefix))
	if prefix == "" {
		prefix = defaultBatchCodePrefix
	}
	return &ResultBatchService{
		batches:    deps.Batches,
		classrooms: deps.Classrooms,
		groups:     deps.Groups,
		scales:     deps.Scales,
		results:    deps.Results,
		signatures: deps.Signatures,
		cleanup:    deps.Cleanup,
		exporter:   deps.Exporter,
		cache:      deps.Cache,
		validator:  deps.Validator,
		logger:     deps.Logger,
		prefix:     prefix,
		now:        time.Now,
	}
}

// FormatBatchCode renders {PREFIX}-{year4}-T{termDigits}-{seq3}.
func FormatBatchCode(prefix, academicYear, term string, seq int) string {
	year := yearPattern.FindString(academicYear)
	if year == "" {
		year = "0000"
	}
	return fmt.Sprintf("%s-%s-T%s-%03d", prefix, year, termDigits(term), seq)
}

func termDigits(term string) string {
	if digits := digitPattern.FindAllString(term, -1); len(digits) > 0 {
		return strings.Join(digits, "")
	}
	lower := strings.ToLower(term)
	switch {
	case strings.Contains(lower, "first"):
		return "1"
	case strings.Contains(lower, "second"):
		return "2"
	case strings.Contains(lower, "third"):
		return "3"
	default:
		return "0"
	}
}

// Create validates references and inserts a draft batch with a fresh code.
func (s *ResultBatchService) Create(ctx context.Context, req dto.CreateResultBatchRequest, actorID string) (*models.ResultBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result batch payload")
	}

	if _, err := s.classrooms.FindByID(ctx, req.ClassroomID); err != nil {
		return nil, lookupError(err, "classroom")
	}
	if _, err := s.scales.FindByID(ctx, req.GradingScaleID); err != nil {
		return nil, lookupError(err, "grading scale")
	}
	group, err := s.groups.FindByID(ctx, req.SubjectGroupID)
	if err != nil {
		return nil, lookupError(err, "subject group")
	}
	if len(group.Subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject group has no subjects")
	}
	students, err := s.classrooms.CountStudents(ctx, req.ClassroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classroom students")
	}

	scope := models.ResultScope{ClassroomID: req.ClassroomID, AcademicYear: req.AcademicYear, Term: req.Term}
	for attempt := 1; attempt <= batchCodeAttempts; attempt++ {
		seq, err := s.batches.NextSequence(ctx, scope)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate batch code")
		}
		now := s.now()
		batch := &models.ResultBatch{
			ID:             uuid.NewString(),
			BatchName:      strings.TrimSpace(req.BatchName),
			BatchCode:      FormatBatchCode(s.prefix, req.AcademicYear, req.Term, seq),
			ClassroomID:    req.ClassroomID,
			AcademicYear:   req.AcademicYear,
			Term:           req.Term,
			GradingScaleID: req.GradingScaleID,
			SubjectGroupID: req.SubjectGroupID,
			Status:         models.BatchStatusDraft,
			ErrorLog:       models.ImportErrors{},
			TotalStudents:  students,
			TotalSubjects:  len(group.Subjects),
			CreatedBy:      actorID,
			TeacherName:    req.TeacherName,
			PrincipalName:  req.PrincipalName,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err = s.batches.Create(ctx, batch)
		if err == nil {
			s.logger.Info("result batch created", zap.String("batch_id", batch.ID), zap.String("batch_code", batch.BatchCode))
			return batch, nil
		}
		if !database.IsUniqueViolation(err, "") {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create result batch")
		}
		s.logger.Warn("batch code collision, retrying", zap.String("batch_code", batch.BatchCode), zap.Int("attempt", attempt))
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique batch code")
}

// Get returns a batch with its statistics re-derived from the roster, the
// subject group and the stored results.
func (s *ResultBatchService) Get(ctx context.Context, id string) (*models.ResultBatch, error) {
	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	students, err := s.classrooms.CountStudents(ctx, batch.ClassroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classroom students")
	}
	batch.TotalStudents = students

	group, err := s.groups.FindByID(ctx, batch.SubjectGroupID)
	switch {
	case err == nil:
		batch.TotalSubjects = len(group.Subjects)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject group")
	}

	results, err := s.results.CountByScope(ctx, batch.Scope())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count results")
	}
	batch.TotalResults = results
	return batch, nil
}

// List returns a page of batches.
func (s *ResultBatchService) List(ctx context.Context, query dto.ResultBatchListQuery) ([]models.ResultBatch, *models.Pagination, error) {
	filter := models.ResultBatchFilter{
		ClassroomID:  query.ClassroomID,
		AcademicYear: query.AcademicYear,
		Term:         query.Term,
		Status:       models.BatchStatus(strings.ToLower(query.Status)),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	batches, total, err := s.batches.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list result batches")
	}
	return batches, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Publish moves a completed batch to published.
func (s *ResultBatchService) Publish(ctx context.Context, id, actorID string) (*models.ResultBatch, error) {
	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("only completed batches can be published (current status: %s)", batch.Status))
	}
	ok, err := s.batches.Publish(ctx, id, actorID, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish result batch")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "result batch changed state while publishing")
	}
	s.cache.InvalidateScope(ctx, batch.Scope())
	s.logger.Info("result batch published", zap.String("batch_id", id), zap.String("actor_id", actorID))
	return s.find(ctx, id)
}

// OverrideStatus sets any allowed status without transition checks. It is an
// administrative escape hatch restricted to admins and always logged.
func (s *ResultBatchService) OverrideStatus(ctx context.Context, id string, req dto.UpdateBatchStatusRequest, actor *models.JWTClaims) (*models.ResultBatch, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can override batch status")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	status := models.BatchStatus(strings.ToLower(string(req.Status)))
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status value")
	}

	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.batches.UpdateStatus(ctx, id, status, actor.UserID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch status")
	}
	s.logger.Warn("result batch status overridden",
		zap.String("batch_id", id),
		zap.String("from", string(batch.Status)),
		zap.String("to", string(status)),
		zap.String("actor_id", actor.UserID),
		zap.String("actor_role", string(actor.Role)),
	)
	if batch.Status == models.BatchStatusPublished || status == models.BatchStatusPublished {
		s.cache.InvalidateScope(ctx, batch.Scope())
	}
	return s.find(ctx, id)
}

// UpdateSignatures applies a partial update of names and signature URLs.
func (s *ResultBatchService) UpdateSignatures(ctx context.Context, id string, req dto.UpdateBatchSignaturesRequest, actorID string) (*models.ResultBatch, error) {
	if req.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one of teacherName, principalName, teacherSignatureUrl or principalSignatureUrl is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signature payload")
	}
	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	update := repository.BatchSignatureUpdate{
		TeacherName:           req.TeacherName,
		PrincipalName:         req.PrincipalName,
		TeacherSignatureURL:   req.TeacherSignatureURL,
		PrincipalSignatureURL: req.PrincipalSignatureURL,
		UpdatedBy:             actorID,
		UpdatedAt:             s.now(),
	}
	if err := s.batches.UpdateSignatures(ctx, id, update); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update signatures")
	}
	s.cleanupReplaced(ctx, batch.TeacherSignatureURL, req.TeacherSignatureURL)
	s.cleanupReplaced(ctx, batch.PrincipalSignatureURL, req.PrincipalSignatureURL)
	return s.find(ctx, id)
}

// UploadSignature stores a signature image and points the batch at it.
func (s *ResultBatchService) UploadSignature(ctx context.Context, id string, kind dto.SignatureKind, upload SignatureUpload, actorID string) (*models.ResultBatch, error) {
	if kind != dto.SignatureTeacher && kind != dto.SignaturePrincipal {
		return nil, appErrors.Clone(appErrors.ErrValidation, "signature kind must be teacher or principal")
	}
	if upload.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "signature image is required")
	}
	if !strings.HasPrefix(strings.ToLower(upload.ContentType), "image/") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "signature must be an image")
	}
	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.signatures.UploadFile(ctx, upload.Reader, upload.Filename, upload.ContentType, signatureFolder, map[string]string{
		"batchId":    batch.ID,
		"kind":       string(kind),
		"uploadedBy": actorID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store signature")
	}

	url := uploaded.FileURL
	req := dto.UpdateBatchSignaturesRequest{}
	if kind == dto.SignatureTeacher {
		req.TeacherSignatureURL = &url
	} else {
		req.PrincipalSignatureURL = &url
	}
	return s.UpdateSignatures(ctx, id, req, actorID)
}

// DownloadTemplate renders the import CSV for the batch: one row per enrolled
// student with blank score columns.
func (s *ResultBatchService) DownloadTemplate(ctx context.Context, id string) (*TemplateFile, error) {
	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	group, err := s.groups.FindByID(ctx, batch.SubjectGroupID)
	if err != nil {
		return nil, lookupError(err, "subject group")
	}
	students, err := s.classrooms.ListStudents(ctx, batch.ClassroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom roster")
	}

	codes := make([]string, 0, len(group.Subjects))
	for _, subject := range group.Subjects {
		codes = append(codes, subject.Code)
	}
	table := export.Table{Headers: ResultTemplateHeader(codes), Rows: make([][]string, 0, len(students))}
	for _, student := range students {
		table.Rows = append(table.Rows, []string{student.ID, student.Email, student.FirstName, student.LastName})
	}
	content, err := s.exporter.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	return &TemplateFile{Filename: batch.BatchCode + "-template.csv", Content: content}, nil
}

// Delete removes the batch together with every result of its scope, then
// schedules its stored artifacts for deletion.
func (s *ResultBatchService) Delete(ctx context.Context, id, actorID string) error {
	batch, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.batches.DeleteWithResults(ctx, batch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "result batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete result batch")
	}
	s.cache.InvalidateScope(ctx, batch.Scope())

	scheduled := 0
	if s.cleanup != nil {
		scheduled = s.cleanup.ScheduleURLs(ctx, batch.CSVFilePath, batch.TeacherSignatureURL, batch.PrincipalSignatureURL)
	}
	s.logger.Info("result batch deleted",
		zap.String("batch_id", id),
		zap.String("actor_id", actorID),
		zap.Int64("results_removed", removed),
		zap.Int("artifacts_scheduled", scheduled),
	)
	return nil
}

func (s *ResultBatchService) cleanupReplaced(ctx context.Context, previous, next *string) {
	if s.cleanup == nil || previous == nil || next == nil || *previous == *next {
		return
	}
	s.cleanup.ScheduleURLs(ctx, previous)
}

func (s *ResultBatchService) find(ctx context.Context, id string) (*models.ResultBatch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "result batch")
	}
	return batch, nil
}

func lookupError(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, resource+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+resource)
}
