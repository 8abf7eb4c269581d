package models

import "time"

// SubjectGroup is a reusable named set of subjects a batch is graded against.
type SubjectGroup struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	AcademicSession *string   `db:"academic_session" json:"academicSession,omitempty"`
	Term            *string   `db:"term" json:"term,omitempty"`
	CreatedBy       *string   `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
	Subjects        []Subject `db:"-" json:"subjects"`
}

// SubjectGroupFilter narrows subject group listings.
type SubjectGroupFilter struct {
	AcademicSession string
	Term            string
	Search          string
}
