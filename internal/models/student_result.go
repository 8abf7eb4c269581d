package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultScope identifies the classroom and academic period of a set of results.
type ResultScope struct {
	ClassroomID  string `db:"classroom_id" json:"classroomId"`
	AcademicYear string `db:"academic_year" json:"academicYear"`
	Term         string `db:"term" json:"term"`
}

// CacheKey renders the scope for cache keys.
func (s ResultScope) CacheKey() string {
	return s.ClassroomID + ":" + s.AcademicYear + ":" + s.Term
}

// StudentResult is one subject score of one student. At most one row exists per
// (classroom, student, subject, academic year, term).
type StudentResult struct {
	ID           string          `db:"id" json:"id"`
	ClassroomID  string          `db:"classroom_id" json:"classroomId"`
	StudentID    string          `db:"student_id" json:"studentId"`
	SubjectID    string          `db:"subject_id" json:"subjectId"`
	AcademicYear string          `db:"academic_year" json:"academicYear"`
	Term         string          `db:"term" json:"term"`
	CAScore      decimal.Decimal `db:"ca_score" json:"caScore"`
	ExamScore    decimal.Decimal `db:"exam_score" json:"examScore"`
	TotalScore   decimal.Decimal `db:"total_score" json:"totalScore"`
	Grade        string          `db:"grade" json:"grade"`
	Remark       string          `db:"remark" json:"remark"`
	TeacherID    *string         `db:"teacher_id" json:"teacherId,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// NaturalKey returns the uniqueness key of the row.
func (r StudentResult) NaturalKey() string {
	return r.ClassroomID + "|" + r.StudentID + "|" + r.SubjectID + "|" + r.AcademicYear + "|" + r.Term
}

// ResultView is a result joined with student and subject names.
type ResultView struct {
	StudentResult
	StudentEmail     string `db:"student_email" json:"studentEmail"`
	StudentFirstName string `db:"student_first_name" json:"studentFirstName"`
	StudentLastName  string `db:"student_last_name" json:"studentLastName"`
	SubjectCode      string `db:"subject_code" json:"subjectCode"`
	SubjectName      string `db:"subject_name" json:"subjectName"`
}

// ResultPeriod optionally narrows result queries to an academic year and term.
type ResultPeriod struct {
	AcademicYear string `form:"academicYear" json:"academicYear,omitempty"`
	Term         string `form:"term" json:"term,omitempty"`
}

// ReportCard groups a student's results for one classroom period.
type ReportCard struct {
	Student   User         `json:"student"`
	Classroom Classroom    `json:"classroom"`
	Period    ResultScope  `json:"period"`
	Results   []ResultView `json:"results"`
	Batch     *ResultBatch `json:"batch,omitempty"`
}
