package dto

// CreateSubjectGroupRequest defines the payload for creating a subject group.
type CreateSubjectGroupRequest struct {
	Name            string   `json:"name" validate:"required,max=255"`
	AcademicSession *string  `json:"academicSession,omitempty"`
	Term            *string  `json:"term,omitempty"`
	SubjectIDs      []string `json:"subjectIds" validate:"required,min=1,dive,required"`
}

// UpdateSubjectGroupRequest updates a subject group. SubjectIDs, when present,
// replaces the whole membership set.
type UpdateSubjectGroupRequest struct {
	Name            *string   `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	AcademicSession *string   `json:"academicSession,omitempty"`
	Term            *string   `json:"term,omitempty"`
	SubjectIDs      *[]string `json:"subjectIds,omitempty" validate:"omitempty,min=1,dive,required"`
}
