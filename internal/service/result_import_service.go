package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/storage"
)

const (
	resultsCSVFolder = "results/csv"

	reasonStudentNotFound = "Student not found"
	reasonNotEnrolled     = "Student not enrolled in this classroom"
	reasonSubjectNotFound = "Subject not found: "
)

type importBatchStore interface {
	FindByID(ctx context.Context, id string) (*models.ResultBatch, error)
	UpdateStatus(ctx context.Context, id string, status models.BatchStatus, updatedBy string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errorLog models.ImportErrors, updatedBy string, at time.Time) error
}

type importResultWriter interface {
	ApplyImport(ctx context.Context, batchID string, rows []models.StudentResult, done models.BatchCompletion) error
}

type subjectGroupReader interface {
	FindByID(ctx context.Context, id string) (*models.SubjectGroup, error)
}

type gradingScaleReader interface {
	FindByID(ctx context.Context, id string) (*models.GradingScale, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type rosterReader interface {
	ListStudentIDs(ctx context.Context, classroomID string) ([]string, error)
}

type activeSubjectFinder interface {
	FindActiveByCodes(ctx context.Context, codes []string) (map[string]models.Subject, error)
}

type importLocker interface {
	TryLock(ctx context.Context, batchID string) (string, bool, error)
	Unlock(ctx context.Context, batchID, token string) error
}

type csvObjectStore interface {
	UploadFile(ctx context.Context, r io.Reader, filename, mimeType, folder string, metadata map[string]string) (*storage.UploadedFile, error)
	Open(key string) (io.ReadCloser, error)
}

// ImportUpload is an uploaded CSV file.
type ImportUpload struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// ResultImportService runs CSV imports against result batches.
type ResultImportService struct {
	batches  importBatchStore
	results  importResultWriter
	groups   subjectGroupReader
	scales   gradingScaleReader
	students studentLookup
	rosters  rosterReader
	subjects activeSubjectFinder
	locks    importLocker
	store    csvObjectStore
	parser   *ResultCSVParser
	cleanup  artifactScheduler
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// ResultImportDeps groups the collaborators of ResultImportService.
type ResultImportDeps struct {
	Batches  importBatchStore
	Results  importResultWriter
	Groups   subjectGroupReader
	Scales   gradingScaleReader
	Students studentLookup
	Rosters  rosterReader
	Subjects activeSubjectFinder
	Locks    importLocker
	Store    csvObjectStore
	Parser   *ResultCSVParser
	Cleanup  artifactScheduler
	Cache    *CacheService
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// NewResultImportService wires the import orchestrator.
func NewResultImportService(deps ResultImportDeps) *ResultImportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := deps.Parser
	if parser == nil {
		parser = NewResultCSVParser(60 * time.Second)
	}
	return &ResultImportService{
		batches:  deps.Batches,
		results:  deps.Results,
		groups:   deps.Groups,
		scales:   deps.Scales,
		students: deps.Students,
		rosters:  deps.Rosters,
		subjects: deps.Subjects,
		locks:    deps.Locks,
		store:    deps.Store,
		parser:   parser,
		cleanup:  deps.Cleanup,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Import stores the CSV, marks the batch processing and imports every valid
// row. Row level problems are reported in the summary; anything else marks the
// batch failed and is returned.
func (s *ResultImportService) Import(ctx context.Context, batchID string, upload ImportUpload, actorID string) (*models.ImportSummary, error) {
	if upload.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "CSV file is required")
	}

	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result batch")
	}
	if batch.Status == models.BatchStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "published batches cannot be re-imported")
	}

	group, err := s.groups.FindByID(ctx, batch.SubjectGroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject group")
	}
	if len(group.Subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject group has no subjects")
	}

	scale, err := s.scales.FindByID(ctx, batch.GradingScaleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading scale not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading scale")
	}
	if err := scale.GradeConfig.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "grading scale configuration is invalid")
	}

	token, ok, err := s.locks.TryLock(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire import lock")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an import is already running for this batch")
	}
	defer func() {
		if err := s.locks.Unlock(context.WithoutCancel(ctx), batch.ID, token); err != nil {
			s.logger.Warn("release import lock", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}()

	start := s.now()
	uploaded, err := s.store.UploadFile(ctx, upload.Reader, csvFilename(upload.Filename, batch), "text/csv", resultsCSVFolder, map[string]string{
		"batchId":    batch.ID,
		"batchCode":  batch.BatchCode,
		"uploadedBy": actorID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store CSV file")
	}

	if err := s.batches.UpdateStatus(ctx, batch.ID, models.BatchStatusProcessing, actorID, start); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark batch processing")
	}
	s.logger.Info("result import started",
		zap.String("batch_id", batch.ID),
		zap.String("batch_code", batch.BatchCode),
		zap.String("file_key", uploaded.FileKey),
		zap.String("actor_id", actorID),
	)

	summary, err := s.run(ctx, batch, group, scale, uploaded, actorID)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.fail(ctx, batch, uploaded, err, actorID)
		s.metrics.RecordImport(0, 0, elapsed, err)
		return nil, normalizeImportError(err)
	}

	if previous := batch.CSVFilePath; previous != nil && *previous != uploaded.FileURL {
		s.scheduleCleanup(ctx, previous)
	}
	s.cache.InvalidateScope(ctx, batch.Scope())
	s.metrics.RecordImport(summary.Imported, summary.Failed, elapsed, nil)
	s.logger.Info("result import finished",
		zap.String("batch_id", batch.ID),
		zap.Int("imported", summary.Imported),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", elapsed),
	)
	return summary, nil
}

func (s *ResultImportService) run(ctx context.Context, batch *models.ResultBatch, group *models.SubjectGroup, scale *models.GradingScale, uploaded *storage.UploadedFile, actorID string) (*models.ImportSummary, error) {
	file, err := s.store.Open(uploaded.FileKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored CSV")
	}
	defer file.Close()

	codes := make([]string, 0, len(group.Subjects))
	for _, subject := range group.Subjects {
		codes = append(codes, strings.ToUpper(subject.Code))
	}

	parsed, err := s.parser.Parse(ctx, file, codes)
	if err != nil {
		return nil, err
	}

	rosterIDs, err := s.rosters.ListStudentIDs(ctx, batch.ClassroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom roster")
	}
	roster := make(map[string]struct{}, len(rosterIDs))
	for _, id := range rosterIDs {
		roster[id] = struct{}{}
	}

	subjects, err := s.subjects.FindActiveByCodes(ctx, codes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	now := s.now()
	teacherID := actorID
	resolver := studentResolver{lookup: s.students, cache: map[string]*models.User{}}
	failures := models.ImportErrors{}
	rows := make([]models.StudentResult, 0, len(parsed.Records))
	byKey := make(map[string]int, len(parsed.Records))

	for _, record := range parsed.Records {
		student, err := resolver.resolve(ctx, record.UserID, record.Email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
		}
		if student == nil {
			failures = append(failures, recordFailure(record, reasonStudentNotFound))
			continue
		}
		if _, ok := roster[student.ID]; !ok {
			failures = append(failures, recordFailure(record, reasonNotEnrolled))
			continue
		}
		subject, ok := subjects[record.SubjectCode]
		if !ok {
			failures = append(failures, recordFailure(record, reasonSubjectNotFound+record.SubjectCode))
			continue
		}

		grade := resolveDecimalGrade(record.TotalScore, scale.GradeConfig)
		row := models.StudentResult{
			ID:           uuid.NewString(),
			ClassroomID:  batch.ClassroomID,
			StudentID:    student.ID,
			SubjectID:    subject.ID,
			AcademicYear: batch.AcademicYear,
			Term:         batch.Term,
			CAScore:      record.CAScore,
			ExamScore:    record.ExamScore,
			TotalScore:   record.TotalScore,
			Grade:        grade.Grade,
			Remark:       grade.Remark,
			TeacherID:    &teacherID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		key := row.NaturalKey()
		if i, dup := byKey[key]; dup {
			rows[i] = row
			continue
		}
		byKey[key] = len(rows)
		rows = append(rows, row)
	}

	studentsTouched := map[string]struct{}{}
	subjectsTouched := map[string]struct{}{}
	for _, row := range rows {
		studentsTouched[row.StudentID] = struct{}{}
		subjectsTouched[row.SubjectID] = struct{}{}
	}

	errorLog := make(models.ImportErrors, 0, len(parsed.Errors)+len(failures))
	errorLog = append(errorLog, parsed.Errors...)
	errorLog = append(errorLog, failures...)

	done := models.BatchCompletion{
		TotalStudents: len(studentsTouched),
		TotalSubjects: len(subjectsTouched),
		TotalResults:  len(rows),
		FailedImports: len(errorLog),
		ErrorLog:      errorLog,
		CSVFilePath:   uploaded.FileURL,
		ProcessedAt:   now,
		UpdatedBy:     actorID,
	}
	if err := s.results.ApplyImport(ctx, batch.ID, rows, done); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "failed to persist results")
	}

	return &models.ImportSummary{
		BatchID:  batch.ID,
		Status:   models.BatchStatusCompleted,
		Imported: len(rows),
		Failed:   len(errorLog),
		Errors:   errorLog,
	}, nil
}

// fail marks the batch failed. The stored upload is never referenced by the
// batch, so it is scheduled for deletion.
func (s *ResultImportService) fail(ctx context.Context, batch *models.ResultBatch, uploaded *storage.UploadedFile, cause error, actorID string) {
	ctx = context.WithoutCancel(ctx)
	errorLog := models.ImportErrors{{Error: cause.Error()}}
	if err := s.batches.MarkFailed(ctx, batch.ID, errorLog, actorID, s.now()); err != nil {
		s.logger.Error("mark result batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	s.scheduleCleanup(ctx, &uploaded.FileURL)
	s.logger.Error("result import failed", zap.String("batch_id", batch.ID), zap.Error(cause))
}

func (s *ResultImportService) scheduleCleanup(ctx context.Context, url *string) {
	if s.cleanup == nil {
		return
	}
	s.cleanup.ScheduleURLs(ctx, url)
}

func normalizeImportError(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, appErrors.ErrImportFailed.Message)
}

func recordFailure(record ParsedScoreRecord, reason string) models.ImportError {
	data := map[string]string{}
	if record.UserID != "" {
		data[columnUserID] = record.UserID
	}
	if record.Email != "" {
		data[columnEmail] = record.Email
	}
	return models.ImportError{Line: record.Line, SubjectCode: record.SubjectCode, Data: data, Error: reason}
}

func csvFilename(name string, batch *models.ResultBatch) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = batch.BatchCode + ".csv"
	}
	return name
}

// studentResolver memoizes student lookups for one import run. A nil user
// with a nil error means the student does not exist.
type studentResolver struct {
	lookup studentLookup
	cache  map[string]*models.User
}

func (r *studentResolver) resolve(ctx context.Context, userID, email string) (*models.User, error) {
	key := "id:" + userID + "|email:" + strings.ToLower(email)
	if user, ok := r.cache[key]; ok {
		return user, nil
	}

	var user *models.User
	if userID != "" {
		found, err := r.lookup.FindByID(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		user = found
	}
	if user == nil && email != "" {
		found, err := r.lookup.FindByEmail(ctx, email)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		user = found
	}
	r.cache[key] = user
	return user, nil
}
