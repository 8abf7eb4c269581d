package dto

import "github.com/noah-isme/sma-results-api/internal/models"

// CreateResultBatchRequest is the payload of POST /result-batches.
type CreateResultBatchRequest struct {
	BatchName      string  `json:"batchName" validate:"required,max=255"`
	ClassroomID    string  `json:"classroomId" validate:"required"`
	AcademicYear   string  `json:"academicYear" validate:"required"`
	Term           string  `json:"term" validate:"required"`
	GradingScaleID string  `json:"gradingScaleId" validate:"required"`
	SubjectGroupID string  `json:"subjectGroupId" validate:"required"`
	TeacherName    *string `json:"teacherName,omitempty"`
	PrincipalName  *string `json:"principalName,omitempty"`
}

// UpdateBatchStatusRequest carries an administrative status override.
type UpdateBatchStatusRequest struct {
	Status models.BatchStatus `json:"status" validate:"required"`
}

// UpdateBatchSignaturesRequest is a partial update of signature names and images.
type UpdateBatchSignaturesRequest struct {
	TeacherName           *string `json:"teacherName,omitempty"`
	PrincipalName         *string `json:"principalName,omitempty"`
	TeacherSignatureURL   *string `json:"teacherSignatureUrl,omitempty" validate:"omitempty,url"`
	PrincipalSignatureURL *string `json:"principalSignatureUrl,omitempty" validate:"omitempty,url"`
}

// Empty reports whether no field was supplied.
func (r UpdateBatchSignaturesRequest) Empty() bool {
	return r.TeacherName == nil && r.PrincipalName == nil && r.TeacherSignatureURL == nil && r.PrincipalSignatureURL == nil
}

// ResultBatchListQuery binds GET /result-batches query parameters.
type ResultBatchListQuery struct {
	ClassroomID  string `form:"classroomId"`
	AcademicYear string `form:"academicYear"`
	Term         string `form:"term"`
	Status       string `form:"status"`
	Page         int    `form:"page"`
	PageSize     int    `form:"pageSize"`
}

// SignatureKind selects which signature image is replaced.
type SignatureKind string

const (
	SignatureTeacher   SignatureKind = "teacher"
	SignaturePrincipal SignatureKind = "principal"
)
