package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/college-portal-api/internal/models"
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	constraintEmail              = "users_email_key"
	constraintRegistrationNumber = "users_registration_number_key"
	constraintClassRollNumber    = "users_class_roll_number_key"
)

var (
	// ErrDuplicateEmail is returned when the email is already owned by another record.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateRegistrationNumber is returned when another student holds the registration number.
	ErrDuplicateRegistrationNumber = errors.New("duplicate registration number")
	// ErrDuplicateRollNumber is returned when the roll number is taken within the class.
	ErrDuplicateRollNumber = errors.New("duplicate roll number")
)

const userColumns = `id, role, name, email, mobile_number, password_hash, registration_number, roll_number, class_id, class_name, course_name, photo_ref, last_login, created_at, updated_at`

// UserRepository provides database access for students and staff.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ExistsByEmail reports whether any record other than excludeID owns the email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT 1 FROM users WHERE email = $1`
	args := []interface{}{email}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+` LIMIT 1`, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// ExistsByRegistrationNumber reports whether a student already holds the registration number.
func (r *UserRepository) ExistsByRegistrationNumber(ctx context.Context, number string) (bool, error) {
	const query = `SELECT 1 FROM users WHERE registration_number = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, number); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check registration number: %w", err)
	}
	return true, nil
}

// MaxRollNumber returns the highest numeric roll number among students of a class, or 0 when the class is empty.
func (r *UserRepository) MaxRollNumber(ctx context.Context, className string) (int, error) {
	const query = `SELECT COALESCE(MAX(CAST(roll_number AS INTEGER)), 0) FROM users WHERE role = 'student' AND class_name = $1`
	var highest int
	if err := r.db.GetContext(ctx, &highest, query, className); err != nil {
		return 0, fmt.Errorf("max roll number: %w", err)
	}
	return highest, nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			roles = append(roles, string(role))
		}
		conditions = append(conditions, fmt.Sprintf("role = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(roles))
	}
	if filter.ClassName != "" {
		conditions = append(conditions, fmt.Sprintf("class_name = $%d", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"email":               true,
		"name":                true,
		"registration_number": true,
		"created_at":          true,
		"updated_at":          true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page, pageSize := models.PageBounds(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// ListStudentsByClass returns the students of a class ordered by numeric roll number.
func (r *UserRepository) ListStudentsByClass(ctx context.Context, className string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'student' AND class_name = $1 ORDER BY CAST(roll_number AS INTEGER) ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, className); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return users, nil
}

// Create inserts a new user. Unique violations are reported as ErrDuplicate* sentinels.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, role, name, email, mobile_number, password_hash, registration_number, roll_number, class_id, class_name, course_name, photo_ref, created_at, updated_at) VALUES (:id, :role, :name, :email, :mobile_number, :password_hash, :registration_number, :roll_number, :class_id, :class_name, :course_name, :photo_ref, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if dup := duplicateFromError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a user. Allocated identifiers and the class snapshot are never rewritten.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET name = :name, email = :email, mobile_number = :mobile_number, password_hash = :password_hash, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if dup := duplicateFromError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdatePhoto replaces the stored photo reference.
func (r *UserRepository) UpdatePhoto(ctx context.Context, id string, photoRef *string, updatedAt time.Time) error {
	const query = `UPDATE users SET photo_ref = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, photoRef, updatedAt); err != nil {
		return fmt.Errorf("update photo: %w", err)
	}
	return nil
}

// Delete removes the user record permanently.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func duplicateFromError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case constraintEmail:
		return ErrDuplicateEmail
	case constraintRegistrationNumber:
		return ErrDuplicateRegistrationNumber
	case constraintClassRollNumber:
		return ErrDuplicateRollNumber
	}
	return nil
}
