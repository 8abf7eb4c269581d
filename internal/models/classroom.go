package models

// Classroom is the roster scope a result batch imports into.
type Classroom struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	AcademicYear string `db:"academic_year" json:"academicYear"`
	AcademicTerm string `db:"academic_term" json:"academicTerm"`
}
