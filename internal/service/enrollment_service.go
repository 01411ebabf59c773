package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/repository"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

type enrollmentRepository interface {
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type classLookup interface {
	Get(ctx context.Context, id string) (*models.Class, error)
}

// EnrollStudentRequest is the payload for creating a student record.
type EnrollStudentRequest struct {
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobile_number" validate:"required,len=10,number"`
	ClassID      string `json:"class_id" validate:"required"`
}

// EnrollmentService creates student records with freshly allocated identifiers.
type EnrollmentService struct {
	repo        enrollmentRepository
	classes     classLookup
	lifecycle   *RecordLifecycle
	maxAttempts int
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, classes classLookup, lifecycle *RecordLifecycle, maxAttempts int, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if maxAttempts <= 0 {
		maxAttempts = defaultAllocationAttempts
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		classes:     classes,
		lifecycle:   lifecycle,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll validates the payload, snapshots the class, then allocates identifiers and inserts.
// A unique-index conflict on an allocated identifier clears it and retries; nothing partial is stored.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	class, err := s.classes.Get(ctx, req.ClassID)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.Clone(appErrors.ErrClassNotFound, "")
		}
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrEmailExists, "")
	}

	student := &models.User{
		Role:         models.RoleStudent,
		Name:         req.Name,
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
		ClassID:      models.StringPtr(class.ID),
		ClassName:    models.StringPtr(class.Name),
		CourseName:   models.StringPtr(class.CourseName),
	}

	if err := s.insertWithRetry(ctx, student); err != nil {
		return nil, err
	}

	s.audit(ctx, student, actorID, meta)
	return student, nil
}

func (s *EnrollmentService) insertWithRetry(ctx context.Context, student *models.User) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := s.lifecycle.BeforeSave(ctx, student, SaveOptions{Creating: true}); err != nil {
			return err
		}

		err := s.repo.Create(ctx, student)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrDuplicateRollNumber):
			s.metrics.RecordAllocationRetry(IdentifierKindRoll)
			s.logger.Debug("roll number taken concurrently, retrying",
				zap.String("class_name", models.StringValue(student.ClassName)),
				zap.String("roll_number", models.StringValue(student.RollNumber)))
			student.RollNumber = nil
		case errors.Is(err, repository.ErrDuplicateRegistrationNumber):
			s.metrics.RecordAllocationRetry(IdentifierKindRegistration)
			student.RegistrationNumber = nil
		case errors.Is(err, repository.ErrDuplicateEmail):
			return appErrors.Clone(appErrors.ErrEmailExists, "")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
	}

	s.logger.Warn("student enrollment exhausted identifier retries",
		zap.String("class_name", models.StringValue(student.ClassName)),
		zap.Int("attempts", s.maxAttempts))
	return appErrors.Clone(appErrors.ErrIdentifierExhausted, "")
}

func (s *EnrollmentService) audit(ctx context.Context, student *models.User, actorID string, meta models.RequestMeta) {
	payload, _ := json.Marshal(map[string]string{
		"registration_number": models.StringValue(student.RegistrationNumber),
		"roll_number":         models.StringValue(student.RollNumber),
		"class_name":          models.StringValue(student.ClassName),
	})
	entry := &models.AuditLog{
		Action:     models.AuditActionStudentEnroll,
		Resource:   "student",
		ResourceID: &student.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}
}
