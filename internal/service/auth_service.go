package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/pkg/captcha"
	"github.com/noah-isme/college-portal-api/pkg/credential"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type loginThrottle interface {
	Failures(ctx context.Context, email string) (int64, error)
	RecordFailure(ctx context.Context, email string) (int64, error)
	Reset(ctx context.Context, email string) error
}

// AuthOptions carries the optional collaborators of the login flow.
type AuthOptions struct {
	Captcha           captcha.Verifier
	Throttle          loginThrottle
	MaxFailedAttempts int
	Metrics           *MetricsService
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo        authUserRepository
	sessions    *SessionIssuer
	credentials *credential.Manager
	lifecycle   *RecordLifecycle
	captcha     captcha.Verifier
	throttle    loginThrottle
	maxFailures int64
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAuthService constructs an AuthService instance. Without a CAPTCHA verifier every login is rejected.
func NewAuthService(repo authUserRepository, sessions *SessionIssuer, credentials *credential.Manager, lifecycle *RecordLifecycle, validate *validator.Validate, logger *zap.Logger, opts AuthOptions) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if opts.MaxFailedAttempts <= 0 {
		opts.MaxFailedAttempts = 5
	}
	return &AuthService{
		repo:        repo,
		sessions:    sessions,
		credentials: credentials,
		lifecycle:   lifecycle,
		captcha:     opts.Captcha,
		throttle:    opts.Throttle,
		maxFailures: int64(opts.MaxFailedAttempts),
		metrics:     opts.Metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Login verifies the CAPTCHA and credentials, then mints a session token.
// Unknown emails, students and wrong passwords all fail with the same error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	if !s.verifyCaptcha(ctx, req) {
		s.metrics.RecordLogin(LoginOutcomeCaptcha)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "captcha verification failed")
	}

	if s.throttled(ctx, req.Email) {
		s.metrics.RecordLogin(LoginOutcomeThrottled)
		return nil, appErrors.Clone(appErrors.ErrTooManyAttempts, "")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.loginFailed(ctx, req.Email)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Role.IsStaff() || !s.credentials.Verify(req.Password, models.StringValue(user.PasswordHash)) {
		return nil, s.loginFailed(ctx, req.Email)
	}

	token, _, err := s.sessions.Mint(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session token")
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, req.Email); err != nil {
			s.logger.Warn("failed to reset login throttle", zap.Error(err))
		}
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.audit(ctx, models.AuditActionLogin, user.ID, `{"status":"success"}`, models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
	s.metrics.RecordLogin(LoginOutcomeSuccess)

	return &models.LoginResult{
		Identity:  models.Identity{Role: user.Role, Email: user.Email},
		Token:     token,
		ExpiresIn: int64(s.sessions.Expiry().Seconds()),
	}, nil
}

// Me resolves the identity behind validated claims. Deleted accounts are no longer authenticated.
func (s *AuthService) Me(ctx context.Context, claims *models.JWTClaims) (*models.Identity, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &models.Identity{Role: user.Role, Email: user.Email}, nil
}

// Logout records the event. The cookie itself is cleared by the handler; there is no server-side session.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims, meta models.RequestMeta) {
	if claims == nil {
		return
	}
	s.audit(ctx, models.AuditActionLogout, claims.UserID, `{"status":"logout"}`, meta)
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !s.credentials.Verify(req.OldPassword, models.StringValue(user.PasswordHash)) {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	user.PendingPassword = req.NewPassword
	if err := s.lifecycle.BeforeSave(ctx, user, SaveOptions{PasswordModified: true}); err != nil {
		return err
	}

	if err := s.repo.UpdatePassword(ctx, userID, *user.PasswordHash, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	s.audit(ctx, models.AuditActionPasswordChange, userID, `{"status":"changed"}`, meta)
	return nil
}

func (s *AuthService) verifyCaptcha(ctx context.Context, req models.LoginRequest) bool {
	if s.captcha == nil {
		return false
	}
	ok, err := s.captcha.Verify(ctx, req.CaptchaToken, req.IP)
	if err != nil {
		s.logger.Warn("captcha verification error", zap.Error(err))
		return false
	}
	return ok
}

func (s *AuthService) throttled(ctx context.Context, email string) bool {
	if s.throttle == nil {
		return false
	}
	failures, err := s.throttle.Failures(ctx, email)
	if err != nil {
		s.logger.Warn("login throttle unavailable", zap.Error(err))
		return false
	}
	return failures >= s.maxFailures
}

func (s *AuthService) loginFailed(ctx context.Context, email string) error {
	if s.throttle != nil {
		if _, err := s.throttle.RecordFailure(ctx, email); err != nil {
			s.logger.Warn("failed to record login failure", zap.Error(err))
		}
	}
	s.metrics.RecordLogin(LoginOutcomeFailure)
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

func (s *AuthService) audit(ctx context.Context, action, userID, values string, meta models.RequestMeta) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(values),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
