package handler

import (
	"context"
	"io"
	"os"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/service"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

type tokenValidatorMock map[string]*models.JWTClaims

func (m tokenValidatorMock) Validate(token string) (*models.JWTClaims, error) {
	if claims, ok := m[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired session")
}

var sessionTokens = tokenValidatorMock{
	"admin-token":   {UserID: "admin-1", Role: models.RoleAdmin, Email: "admin@example.com"},
	"clerk-token":   {UserID: "clerk-1", Role: models.RoleClerk, Email: "clerk@example.com"},
	"teacher-token": {UserID: "teacher-1", Role: models.RoleTeacher, Email: "teacher@example.com"},
}

type authServiceMock struct {
	logouts []string
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	if req.Email != "clerk@example.com" || req.Password != "clerk-pass-123" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	return &models.LoginResult{
		Identity:  models.Identity{Role: models.RoleClerk, Email: req.Email},
		Token:     "signed-session-token",
		ExpiresIn: 604800,
	}, nil
}

func (m *authServiceMock) Me(ctx context.Context, claims *models.JWTClaims) (*models.Identity, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	return &models.Identity{Role: claims.Role, Email: claims.Email}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, claims *models.JWTClaims, meta models.RequestMeta) {
	if claims != nil {
		m.logouts = append(m.logouts, claims.UserID)
	}
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	return nil
}

type studentServiceMock struct {
	deleted []string
}

func (m *studentServiceMock) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	return []models.User{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *studentServiceMock) Get(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Role: models.RoleStudent}, nil
}

func (m *studentServiceMock) Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.User, error) {
	return &models.User{ID: id, Role: models.RoleStudent, Name: req.Name}, nil
}

func (m *studentServiceMock) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type enrollmentServiceMock struct{}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, req service.EnrollStudentRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: "s1", Role: models.RoleStudent, Name: req.Name, RollNumber: models.StringPtr("01")}, nil
}

type photoServiceMock struct{}

func (m *photoServiceMock) UploadPhoto(ctx context.Context, studentID string, size int64, body io.Reader) (*models.User, error) {
	return &models.User{ID: studentID, Role: models.RoleStudent}, nil
}

func (m *photoServiceMock) PhotoLink(ctx context.Context, studentID string) (*service.PhotoLink, error) {
	return &service.PhotoLink{URL: "/api/v1/files/token"}, nil
}

type classServiceMock struct{}

func (m *classServiceMock) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	return []models.Class{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *classServiceMock) Get(ctx context.Context, id string) (*models.Class, error) {
	return &models.Class{ID: id, Name: "BCA-A"}, nil
}

func (m *classServiceMock) Create(ctx context.Context, req service.CreateClassRequest) (*models.Class, error) {
	return &models.Class{ID: "c1", Name: req.Name, CourseName: req.CourseName}, nil
}

type exportServiceMock struct{}

func (m *exportServiceMock) ClassRoster(ctx context.Context, classID, format string) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: "roster-bca-a.csv", ContentType: "text/csv", Body: []byte("Roll No.\n01\n")}, nil
}

type staffServiceMock struct{}

func (m *staffServiceMock) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	return []models.User{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *staffServiceMock) Create(ctx context.Context, req service.CreateStaffRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: "t1", Role: req.Role, Email: req.Email}, nil
}

func (m *staffServiceMock) Update(ctx context.Context, id string, req service.UpdateStaffRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: id, Email: req.Email}, nil
}

func (m *staffServiceMock) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	return nil
}

type fileServiceMock struct{}

func (m *fileServiceMock) OpenSigned(ctx context.Context, token string) (*os.File, string, error) {
	return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid link")
}
