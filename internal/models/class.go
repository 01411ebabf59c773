package models

import "time"

// Class represents an academic class students are enrolled into.
type Class struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CourseName string    `db:"course_name" json:"course_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	CourseName string
	Search     string
	Page       int
	PageSize   int
}
