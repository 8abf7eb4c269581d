package models

// Subject is matched against CSV headers by its code.
type Subject struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Code     string  `db:"code" json:"code"`
	Category *string `db:"category" json:"category,omitempty"`
	IsActive bool    `db:"is_active" json:"isActive"`
}
