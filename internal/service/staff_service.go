package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/repository"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

type staffRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateStaffRequest is the payload for creating a teacher, clerk or admin.
type CreateStaffRequest struct {
	Name         string          `json:"name" validate:"required,max=120"`
	Email        string          `json:"email" validate:"required,email"`
	MobileNumber string          `json:"mobile_number" validate:"required,len=10,number"`
	Password     string          `json:"password" validate:"required,min=8"`
	Role         models.UserRole `json:"role" validate:"required,oneof=teacher clerk admin"`
}

// UpdateStaffRequest changes staff details. An empty password leaves the stored hash untouched.
type UpdateStaffRequest struct {
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobile_number" validate:"required,len=10,number"`
	Password     string `json:"password" validate:"omitempty,min=8"`
}

var staffRoles = []models.UserRole{models.RoleTeacher, models.RoleClerk, models.RoleAdmin}

// StaffService manages password-holding accounts.
type StaffService struct {
	repo      staffRepository
	lifecycle *RecordLifecycle
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStaffService constructs the staff service.
func NewStaffService(repo staffRepository, lifecycle *RecordLifecycle, validate *validator.Validate, logger *zap.Logger) *StaffService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{repo: repo, lifecycle: lifecycle, validator: validate, logger: logger}
}

// List returns staff accounts. A role filter outside the staff roles is ignored.
func (s *StaffService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	var roles []models.UserRole
	for _, role := range filter.Roles {
		if role.IsStaff() {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = staffRoles
	}
	filter.Roles = roles
	filter.ClassName = ""

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list staff")
	}
	page, size := models.PageBounds(filter.Page, filter.PageSize)
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create hashes the password once through the lifecycle hook and stores the account.
func (s *StaffService) Create(ctx context.Context, req CreateStaffRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff payload")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrEmailExists, "")
	}

	user := &models.User{
		Role:            req.Role,
		Name:            req.Name,
		Email:           req.Email,
		MobileNumber:    req.MobileNumber,
		PendingPassword: req.Password,
	}
	if err := s.lifecycle.BeforeSave(ctx, user, SaveOptions{Creating: true, PasswordModified: true}); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrEmailExists, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create staff")
	}

	s.audit(ctx, models.AuditActionStaffCreate, user, actorID, meta)
	return user, nil
}

// Update modifies staff details and re-hashes only when a new password is supplied.
func (s *StaffService) Update(ctx context.Context, id string, req UpdateStaffRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff payload")
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != user.Email {
		exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrEmailExists, "")
		}
	}

	user.Name = req.Name
	user.Email = req.Email
	user.MobileNumber = req.MobileNumber

	opts := SaveOptions{}
	if req.Password != "" {
		user.PendingPassword = req.Password
		opts.PasswordModified = true
	}
	if err := s.lifecycle.BeforeSave(ctx, user, opts); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrEmailExists, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update staff")
	}

	s.audit(ctx, models.AuditActionStaffUpdate, user, actorID, meta)
	return user, nil
}

// Delete removes a staff account permanently. Admins cannot delete themselves.
func (s *StaffService) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete your own account")
	}
	user, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete staff")
	}
	s.audit(ctx, models.AuditActionStaffDelete, user, actorID, meta)
	return nil
}

func (s *StaffService) get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff")
	}
	if !user.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
	}
	return user, nil
}

func (s *StaffService) audit(ctx context.Context, action string, user *models.User, actorID string, meta models.RequestMeta) {
	payload, _ := json.Marshal(map[string]string{"email": user.Email, "role": string(user.Role)})
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "staff",
		ResourceID: &user.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record staff audit log", zap.String("action", action), zap.Error(err))
	}
}
