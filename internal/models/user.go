package models

import "strings"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// IsStaff reports whether the role may manage result batches.
func (r UserRole) IsStaff() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleTeacher
}

// User is the identity record this service reads from the users table.
type User struct {
	ID        string   `db:"id" json:"id"`
	Email     string   `db:"email" json:"email"`
	FirstName string   `db:"first_name" json:"firstName"`
	LastName  string   `db:"last_name" json:"lastName"`
	Role      UserRole `db:"role" json:"role"`
}

// FullName joins the first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
