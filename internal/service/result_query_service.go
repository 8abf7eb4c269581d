package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/export"
)

type scopeResultReader interface {
	ListByScope(ctx context.Context, scope models.ResultScope) ([]models.ResultView, error)
	ListForStudent(ctx context.Context, studentID string, scope models.ResultScope) ([]models.ResultView, error)
}

type publishedBatchReader interface {
	HasPublished(ctx context.Context, scope models.ResultScope) (bool, error)
	LatestForScope(ctx context.Context, scope models.ResultScope) (*models.ResultBatch, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	IsEnrolled(ctx context.Context, classroomID, studentID string) (bool, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type reportCardRenderer interface {
	RenderReportCard(card export.ReportCard) ([]byte, error)
}

// ResultQueryService serves stored results: class listings and report cards.
type ResultQueryService struct {
	results    scopeResultReader
	batches    publishedBatchReader
	classrooms enrollmentReader
	users      userReader
	pdf        reportCardRenderer
	cache      *CacheService
	logger     *zap.Logger
	schoolName string
}

// NewResultQueryService constructs the service.
func NewResultQueryService(results scopeResultReader, batches publishedBatchReader, classrooms enrollmentReader, users userReader, pdf reportCardRenderer, cache *CacheService, logger *zap.Logger, schoolName string) *ResultQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ResultQueryService{
		results:    results,
		batches:    batches,
		classrooms: classrooms,
		users:      users,
		pdf:        pdf,
		cache:      cache,
		logger:     logger,
		schoolName: schoolName,
	}
}

// GetClassResults lists every result of a classroom period. The period defaults
// to the classroom's current academic year and term.
func (s *ResultQueryService) GetClassResults(ctx context.Context, classroomID string, period models.ResultPeriod) ([]models.ResultView, error) {
	classroom, err := s.classrooms.FindByID(ctx, classroomID)
	if err != nil {
		return nil, lookupError(err, "classroom")
	}
	scope := scopeFor(classroom, period)

	key := ClassResultsKey(scope)
	var cached []models.ResultView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	views, err := s.results.ListByScope(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class results")
	}
	if views == nil {
		views = []models.ResultView{}
	}
	_ = s.cache.Set(ctx, key, views, 0)
	return views, nil
}

// GetStudentReportCard returns one student's results for a classroom period.
// Students may read only their own card and only once a batch of the period
// has been published.
func (s *ResultQueryService) GetStudentReportCard(ctx context.Context, studentID, classroomID string, period models.ResultPeriod, actor *models.JWTClaims) (*models.ReportCard, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	isStudent := actor.Role == models.RoleStudent
	if isStudent && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own report card")
	}
	if classroomID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classroomId is required")
	}

	classroom, err := s.classrooms.FindByID(ctx, classroomID)
	if err != nil {
		return nil, lookupError(err, "classroom")
	}
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	enrolled, err := s.classrooms.IsEnrolled(ctx, classroomID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this classroom")
	}

	scope := scopeFor(classroom, period)
	if isStudent {
		published, err := s.batches.HasPublished(ctx, scope)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check publication")
		}
		if !published {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "results for this period are not published yet")
		}
	}

	views, err := s.results.ListForStudent(ctx, studentID, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student results")
	}
	if views == nil {
		views = []models.ResultView{}
	}

	card := &models.ReportCard{Student: *student, Classroom: *classroom, Period: scope, Results: views}
	batch, err := s.batches.LatestForScope(ctx, scope)
	switch {
	case err == nil:
		card.Batch = batch
	case !errors.Is(err, sql.ErrNoRows):
		s.logger.Warn("load batch for report card", zap.String("classroom_id", classroomID), zap.Error(err))
	}
	return card, nil
}

// RenderReportCardPDF renders a report card as a single page PDF.
func (s *ResultQueryService) RenderReportCardPDF(card *models.ReportCard) ([]byte, error) {
	if card == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report card is required")
	}
	printable := export.ReportCard{
		SchoolName:   s.schoolName,
		StudentName:  card.Student.FullName(),
		StudentEmail: card.Student.Email,
		Classroom:    card.Classroom.Name,
		AcademicYear: card.Period.AcademicYear,
		Term:         card.Period.Term,
		Lines:        make([]export.ReportCardLine, 0, len(card.Results)),
	}
	if printable.StudentName == "" {
		printable.StudentName = card.Student.Email
	}
	if card.Batch != nil {
		printable.TeacherName = deref(card.Batch.TeacherName)
		printable.PrincipalName = deref(card.Batch.PrincipalName)
	}
	for _, r := range card.Results {
		printable.Lines = append(printable.Lines, export.ReportCardLine{
			SubjectCode: r.SubjectCode,
			SubjectName: r.SubjectName,
			CAScore:     r.CAScore.String(),
			ExamScore:   r.ExamScore.String(),
			TotalScore:  r.TotalScore.String(),
			Grade:       r.Grade,
			Remark:      r.Remark,
		})
	}
	data, err := s.pdf.RenderReportCard(printable)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report card")
	}
	return data, nil
}

func scopeFor(classroom *models.Classroom, period models.ResultPeriod) models.ResultScope {
	scope := models.ResultScope{ClassroomID: classroom.ID, AcademicYear: period.AcademicYear, Term: period.Term}
	if scope.AcademicYear == "" {
		scope.AcademicYear = classroom.AcademicYear
	}
	if scope.Term == "" {
		scope.Term = classroom.AcademicTerm
	}
	return scope
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
