package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleClerk   UserRole = "clerk"
	RoleAdmin   UserRole = "admin"
)

// IsStaff reports whether the role authenticates with a password.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleTeacher, RoleClerk, RoleAdmin:
		return true
	}
	return false
}

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r.IsStaff()
}

// User is the single identity record for students and staff.
type User struct {
	ID                 string     `db:"id" json:"id"`
	Role               UserRole   `db:"role" json:"role"`
	Name               string     `db:"name" json:"name"`
	Email              string     `db:"email" json:"email"`
	MobileNumber       string     `db:"mobile_number" json:"mobile_number"`
	PasswordHash       *string    `db:"password_hash" json:"-"`
	RegistrationNumber *string    `db:"registration_number" json:"registration_number,omitempty"`
	RollNumber         *string    `db:"roll_number" json:"roll_number,omitempty"`
	ClassID            *string    `db:"class_id" json:"class_id,omitempty"`
	ClassName          *string    `db:"class_name" json:"class_name,omitempty"`
	CourseName         *string    `db:"course_name" json:"course_name,omitempty"`
	PhotoRef           *string    `db:"photo_ref" json:"-"`
	LastLogin          *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	// PendingPassword carries a plaintext (or already hashed) password until the save hook runs.
	PendingPassword string `db:"-" json:"-"`
}

// HasPhoto reports whether a stored photo reference exists.
func (u *User) HasPhoto() bool {
	return u.PhotoRef != nil && *u.PhotoRef != ""
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Roles     []UserRole
	ClassName string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageBounds returns the page and page size a list query actually uses.
// Pages start at 1; sizes outside 1..MaxPageSize fall back to DefaultPageSize.
func PageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
