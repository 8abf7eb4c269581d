package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BatchStatus is the lifecycle state of a result batch.
type BatchStatus string

const (
	BatchStatusDraft      BatchStatus = "draft"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusPublished  BatchStatus = "published"
)

// BatchStatuses lists every status accepted by the administrative override.
var BatchStatuses = []BatchStatus{
	BatchStatusDraft,
	BatchStatusProcessing,
	BatchStatusCompleted,
	BatchStatusFailed,
	BatchStatusPublished,
}

// Valid reports whether s is one of BatchStatuses.
func (s BatchStatus) Valid() bool {
	for _, candidate := range BatchStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ImportError is one entry of a batch error log.
type ImportError struct {
	Line        int               `json:"line,omitempty"`
	SubjectCode string            `json:"subjectCode,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Error       string            `json:"error"`
}

// ImportErrors is persisted as a JSONB array.
type ImportErrors []ImportError

// Value marshals the error log to JSON for persistence.
func (e ImportErrors) Value() (driver.Value, error) {
	items := []ImportError(e)
	if items == nil {
		items = []ImportError{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal import errors: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB error log.
func (e *ImportErrors) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ImportErrors", value)
	}
	if len(data) == 0 {
		*e = nil
		return nil
	}
	var items []ImportError
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal import errors: %w", err)
	}
	*e = items
	return nil
}

// ResultBatch is one CSV import unit scoped to a classroom, academic year and term.
type ResultBatch struct {
	ID                    string       `db:"id" json:"id"`
	BatchName             string       `db:"batch_name" json:"batchName"`
	BatchCode             string       `db:"batch_code" json:"batchCode"`
	ClassroomID           string       `db:"classroom_id" json:"classroomId"`
	AcademicYear          string       `db:"academic_year" json:"academicYear"`
	Term                  string       `db:"term" json:"term"`
	GradingScaleID        string       `db:"grading_scale_id" json:"gradingScaleId"`
	SubjectGroupID        string       `db:"subject_group_id" json:"subjectGroupId"`
	Status                BatchStatus  `db:"status" json:"status"`
	CSVFilePath           *string      `db:"csv_file_path" json:"csvFilePath,omitempty"`
	ErrorLog              ImportErrors `db:"error_log" json:"errorLog"`
	TotalStudents         int          `db:"total_students" json:"totalStudents"`
	TotalSubjects         int          `db:"total_subjects" json:"totalSubjects"`
	TotalResults          int          `db:"total_results" json:"totalResults"`
	FailedImports         int          `db:"failed_imports" json:"failedImports"`
	ProcessedAt           *time.Time   `db:"processed_at" json:"processedAt,omitempty"`
	PublishedAt           *time.Time   `db:"published_at" json:"publishedAt,omitempty"`
	CreatedBy             string       `db:"created_by" json:"createdBy"`
	UpdatedBy             *string      `db:"updated_by" json:"updatedBy,omitempty"`
	TeacherName           *string      `db:"teacher_name" json:"teacherName,omitempty"`
	PrincipalName         *string      `db:"principal_name" json:"principalName,omitempty"`
	TeacherSignatureURL   *string      `db:"teacher_signature_url" json:"teacherSignatureUrl,omitempty"`
	PrincipalSignatureURL *string      `db:"principal_signature_url" json:"principalSignatureUrl,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updatedAt"`
}

// Scope returns the natural key prefix shared by every result the batch writes.
func (b ResultBatch) Scope() ResultScope {
	return ResultScope{ClassroomID: b.ClassroomID, AcademicYear: b.AcademicYear, Term: b.Term}
}

// ResultBatchFilter narrows batch listings.
type ResultBatchFilter struct {
	ClassroomID  string
	AcademicYear string
	Term         string
	Status       BatchStatus
	Page         int
	PageSize     int
}

// BatchCompletion is the final state written when an import commits.
type BatchCompletion struct {
	TotalStudents int
	TotalSubjects int
	TotalResults  int
	FailedImports int
	ErrorLog      ImportErrors
	CSVFilePath   string
	ProcessedAt   time.Time
	UpdatedBy     string
}

// ImportSummary is returned to callers of an import.
type ImportSummary struct {
	BatchID  string       `json:"batchId"`
	Status   BatchStatus  `json:"status"`
	Imported int          `json:"imported"`
	Failed   int          `json:"failed"`
	Errors   ImportErrors `json:"errors"`
}
