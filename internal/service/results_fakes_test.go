package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/repository"
)

func passFailScale() models.GradeConfig {
	return models.GradeConfig{
		{Min: 0, Max: 49, Grade: "F", Remark: "Fail"},
		{Min: 50, Max: 100, Grade: "P", Remark: "Pass"},
	}
}

func strPtr(s string) *string { return &s }

type batchStoreStub struct {
	mu         sync.Mutex
	batches    map[string]*models.ResultBatch
	seq        map[string]int
	createErrs []error
	statuses   []models.BatchStatus
	signatures []repository.BatchSignatureUpdate
	deleted    []string
	findErr    error
}

func newBatchStoreStub(batches ...*models.ResultBatch) *batchStoreStub {
	s := &batchStoreStub{batches: map[string]*models.ResultBatch{}, seq: map[string]int{}}
	for _, b := range batches {
		s.batches[b.ID] = b
	}
	return s
}

func (s *batchStoreStub) get(id string) *models.ResultBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.batches[id]
	return &copied
}

func (s *batchStoreStub) NextSequence(ctx context.Context, scope models.ResultScope) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[scope.CacheKey()]++
	return s.seq[scope.CacheKey()], nil
}

func (s *batchStoreStub) Create(ctx context.Context, batch *models.ResultBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	copied := *batch
	s.batches[batch.ID] = &copied
	return nil
}

func (s *batchStoreStub) FindByID(ctx context.Context, id string) (*models.ResultBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	b, ok := s.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *b
	return &copied, nil
}

func (s *batchStoreStub) List(ctx context.Context, filter models.ResultBatchFilter) ([]models.ResultBatch, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []models.ResultBatch{}
	for _, b := range s.batches {
		if filter.ClassroomID != "" && b.ClassroomID != filter.ClassroomID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		items = append(items, *b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (s *batchStoreStub) UpdateStatus(ctx context.Context, id string, status models.BatchStatus, updatedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = status
	b.UpdatedBy = &updatedBy
	b.UpdatedAt = at
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *batchStoreStub) MarkFailed(ctx context.Context, id string, errorLog models.ImportErrors, updatedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = models.BatchStatusFailed
	b.ErrorLog = errorLog
	b.UpdatedBy = &updatedBy
	s.statuses = append(s.statuses, models.BatchStatusFailed)
	return nil
}

func (s *batchStoreStub) Publish(ctx context.Context, id, updatedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok || b.Status != models.BatchStatusCompleted {
		return false, nil
	}
	b.Status = models.BatchStatusPublished
	b.PublishedAt = &at
	return true, nil
}

func (s *batchStoreStub) UpdateSignatures(ctx context.Context, id string, update repository.BatchSignatureUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	if update.TeacherName != nil {
		b.TeacherName = update.TeacherName
	}
	if update.PrincipalName != nil {
		b.PrincipalName = update.PrincipalName
	}
	if update.TeacherSignatureURL != nil {
		b.TeacherSignatureURL = update.TeacherSignatureURL
	}
	if update.PrincipalSignatureURL != nil {
		b.PrincipalSignatureURL = update.PrincipalSignatureURL
	}
	s.signatures = append(s.signatures, update)
	return nil
}

func (s *batchStoreStub) DeleteWithResults(ctx context.Context, batch *models.ResultBatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; !ok {
		return 0, sql.ErrNoRows
	}
	delete(s.batches, batch.ID)
	s.deleted = append(s.deleted, batch.ID)
	return 0, nil
}

func (s *batchStoreStub) HasPublished(ctx context.Context, scope models.ResultScope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.Scope() == scope && b.Status == models.BatchStatusPublished {
			return true, nil
		}
	}
	return false, nil
}

func (s *batchStoreStub) LatestForScope(ctx context.Context, scope models.ResultScope) (*models.ResultBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ResultBatch
	for _, b := range s.batches {
		if b.Scope() == scope && (latest == nil || b.CreatedAt.After(latest.CreatedAt)) {
			latest = b
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

// resultStoreStub keeps results keyed by their natural key and applies the
// batch completion to the linked batch store, mirroring one transaction.
type resultStoreStub struct {
	mu       sync.Mutex
	rows     map[string]models.StudentResult
	batches  *batchStoreStub
	users    *userStoreStub
	subjects *subjectStoreStub
	applyErr error
	applied  int
}

func newResultStoreStub(batches *batchStoreStub) *resultStoreStub {
	return &resultStoreStub{rows: map[string]models.StudentResult{}, batches: batches}
}

// numericFits reports whether d is storable in a NUMERIC(precision, scale) column.
func numericFits(d decimal.Decimal, precision, scale int32) bool {
	return d.Equal(d.Round(scale)) && d.Abs().LessThan(decimal.New(1, precision-scale))
}

func (s *resultStoreStub) ApplyImport(ctx context.Context, batchID string, rows []models.StudentResult, done models.BatchCompletion) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	for _, row := range rows {
		if !numericFits(row.CAScore, 8, 2) || !numericFits(row.ExamScore, 8, 2) || !numericFits(row.TotalScore, 9, 2) {
			return fmt.Errorf("pq: numeric field overflow (student %s)", row.StudentID)
		}
	}
	s.mu.Lock()
	for _, row := range rows {
		if existing, ok := s.rows[row.NaturalKey()]; ok {
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
		}
		s.rows[row.NaturalKey()] = row
	}
	s.applied++
	s.mu.Unlock()

	s.batches.mu.Lock()
	defer s.batches.mu.Unlock()
	b := s.batches.batches[batchID]
	b.Status = models.BatchStatusCompleted
	b.TotalStudents = done.TotalStudents
	b.TotalSubjects = done.TotalSubjects
	b.TotalResults = done.TotalResults
	b.FailedImports = done.FailedImports
	b.ErrorLog = done.ErrorLog
	b.CSVFilePath = &done.CSVFilePath
	b.ProcessedAt = &done.ProcessedAt
	return nil
}

func (s *resultStoreStub) inScope(scope models.ResultScope) []models.StudentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.StudentResult{}
	for _, r := range s.rows {
		if r.ClassroomID == scope.ClassroomID && r.AcademicYear == scope.AcademicYear && r.Term == scope.Term {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NaturalKey() < out[j].NaturalKey() })
	return out
}

func (s *resultStoreStub) CountByScope(ctx context.Context, scope models.ResultScope) (int, error) {
	return len(s.inScope(scope)), nil
}

func (s *resultStoreStub) view(r models.StudentResult) models.ResultView {
	v := models.ResultView{StudentResult: r}
	if s.users != nil {
		if u, ok := s.users.users[r.StudentID]; ok {
			v.StudentEmail, v.StudentFirstName, v.StudentLastName = u.Email, u.FirstName, u.LastName
		}
	}
	if s.subjects != nil {
		for _, subject := range s.subjects.subjects {
			if subject.ID == r.SubjectID {
				v.SubjectCode, v.SubjectName = subject.Code, subject.Name
			}
		}
	}
	return v
}

func (s *resultStoreStub) ListByScope(ctx context.Context, scope models.ResultScope) ([]models.ResultView, error) {
	out := []models.ResultView{}
	for _, r := range s.inScope(scope) {
		out = append(out, s.view(r))
	}
	return out, nil
}

func (s *resultStoreStub) ListForStudent(ctx context.Context, studentID string, scope models.ResultScope) ([]models.ResultView, error) {
	out := []models.ResultView{}
	for _, r := range s.inScope(scope) {
		if r.StudentID == studentID {
			out = append(out, s.view(r))
		}
	}
	return out, nil
}

type groupStoreStub struct {
	groups map[string]*models.SubjectGroup
}

func (s *groupStoreStub) FindByID(ctx context.Context, id string) (*models.SubjectGroup, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *g
	return &copied, nil
}

type scaleStoreStub struct {
	scales map[string]*models.GradingScale
}

func (s *scaleStoreStub) FindByID(ctx context.Context, id string) (*models.GradingScale, error) {
	sc, ok := s.scales[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *sc
	return &copied, nil
}

type userStoreStub struct {
	users   map[string]models.User
	lookups int
}

func newUserStoreStub(users ...models.User) *userStoreStub {
	s := &userStoreStub{users: map[string]models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.lookups++
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (s *userStoreStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.lookups++
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			found := u
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

type classroomStoreStub struct {
	classrooms map[string]*models.Classroom
	rosters    map[string][]models.User
}

func (s *classroomStoreStub) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	c, ok := s.classrooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *classroomStoreStub) ListStudentIDs(ctx context.Context, classroomID string) ([]string, error) {
	ids := []string{}
	for _, u := range s.rosters[classroomID] {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (s *classroomStoreStub) ListStudents(ctx context.Context, classroomID string) ([]models.User, error) {
	return s.rosters[classroomID], nil
}

func (s *classroomStoreStub) CountStudents(ctx context.Context, classroomID string) (int, error) {
	return len(s.rosters[classroomID]), nil
}

func (s *classroomStoreStub) IsEnrolled(ctx context.Context, classroomID, studentID string) (bool, error) {
	for _, u := range s.rosters[classroomID] {
		if u.ID == studentID {
			return true, nil
		}
	}
	return false, nil
}

type subjectStoreStub struct {
	subjects []models.Subject
}

func (s *subjectStoreStub) FindActiveByCodes(ctx context.Context, codes []string) (map[string]models.Subject, error) {
	out := map[string]models.Subject{}
	for _, code := range codes {
		for _, subject := range s.subjects {
			if subject.IsActive && strings.EqualFold(subject.Code, code) {
				out[strings.ToUpper(subject.Code)] = subject
			}
		}
	}
	return out, nil
}

func (s *subjectStoreStub) FindByIDs(ctx context.Context, ids []string) ([]models.Subject, error) {
	out := []models.Subject{}
	for _, id := range ids {
		for _, subject := range s.subjects {
			if subject.ID == id {
				out = append(out, subject)
			}
		}
	}
	return out, nil
}

// resultsFixture is a classroom with two enrolled students, one outsider and
// a MATH/ENG subject group graded pass/fail.
type resultsFixture struct {
	batches    *batchStoreStub
	results    *resultStoreStub
	groups     *groupStoreStub
	scales     *scaleStoreStub
	users      *userStoreStub
	classrooms *classroomStoreStub
	subjects   *subjectStoreStub
	batch      *models.ResultBatch
}

func newResultsFixture() *resultsFixture {
	math := models.Subject{ID: "sub-math", Name: "Mathematics", Code: "MATH", IsActive: true}
	eng := models.Subject{ID: "sub-eng", Name: "English", Code: "ENG", IsActive: true}
	ada := models.User{ID: "stu-1", Email: "ada@school.test", FirstName: "Ada", LastName: "Obi", Role: models.RoleStudent}
	bola := models.User{ID: "stu-2", Email: "bola@school.test", FirstName: "Bola", LastName: "Uche", Role: models.RoleStudent}
	outsider := models.User{ID: "stu-9", Email: "out@school.test", FirstName: "Out", LastName: "Sider", Role: models.RoleStudent}

	batch := &models.ResultBatch{
		ID:             "batch-1",
		BatchName:      "Term 1 results",
		BatchCode:      "RB-2024-T1-001",
		ClassroomID:    "class-1",
		AcademicYear:   "2024/2025",
		Term:           "1",
		GradingScaleID: "scale-1",
		SubjectGroupID: "group-1",
		Status:         models.BatchStatusDraft,
		CreatedBy:      "teacher-1",
		CreatedAt:      time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	batches := newBatchStoreStub(batch)
	users := newUserStoreStub(ada, bola, outsider)
	subjects := &subjectStoreStub{subjects: []models.Subject{math, eng}}
	results := newResultStoreStub(batches)
	results.users = users
	results.subjects = subjects

	return &resultsFixture{
		batches: batches,
		results: results,
		groups: &groupStoreStub{groups: map[string]*models.SubjectGroup{
			"group-1": {ID: "group-1", Name: "Core", Subjects: []models.Subject{math, eng}},
			"empty":   {ID: "empty", Name: "Empty"},
		}},
		scales: &scaleStoreStub{scales: map[string]*models.GradingScale{
			"scale-1": {ID: "scale-1", Name: "Pass/Fail", GradeConfig: passFailScale()},
		}},
		users: users,
		classrooms: &classroomStoreStub{
			classrooms: map[string]*models.Classroom{
				"class-1": {ID: "class-1", Name: "SS1 A", AcademicYear: "2024/2025", AcademicTerm: "1"},
			},
			rosters: map[string][]models.User{"class-1": {ada, bola}},
		},
		subjects: subjects,
		batch:    batch,
	}
}
