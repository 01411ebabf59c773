package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/repository"
	"github.com/noah-isme/college-portal-api/pkg/credential"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

func newTestEnrollmentService(store *memoryUserStore, classes classLookup, metrics *MetricsService) *EnrollmentService {
	allocator := NewIdentifierAllocator(store, 0, metrics, zap.NewNop())
	lifecycle := NewRecordLifecycle(credential.NewManager(credential.MinCost), allocator)
	return NewEnrollmentService(store, classes, lifecycle, allocator.MaxAttempts(), metrics, validator.New(), zap.NewNop())
}

func ashaRequest(email string) EnrollStudentRequest {
	return EnrollStudentRequest{Name: "Asha Rao", Email: email, MobileNumber: "9876543210", ClassID: "class-bca-a"}
}

func TestEnrollAssignsSequentialRollNumbers(t *testing.T) {
	store := newMemoryUserStore()
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	var rolls []string
	registrations := map[string]bool{}
	for i := 1; i <= 3; i++ {
		student, err := svc.Enroll(context.Background(), ashaRequest(fmt.Sprintf("asha%d@example.com", i)), "clerk-1", models.RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, models.RoleStudent, student.Role)
		assert.Equal(t, "BCA-A", models.StringValue(student.ClassName))
		assert.Equal(t, "Bachelor of Computer Applications", models.StringValue(student.CourseName))
		assert.Nil(t, student.PasswordHash)

		number := models.StringValue(student.RegistrationNumber)
		assert.Len(t, number, 6)
		registrations[number] = true
		rolls = append(rolls, models.StringValue(student.RollNumber))
	}

	assert.Equal(t, []string{"01", "02", "03"}, rolls)
	assert.Len(t, registrations, 3)
	assert.Equal(t, []string{models.AuditActionStudentEnroll, models.AuditActionStudentEnroll, models.AuditActionStudentEnroll}, store.auditActions())
}

func TestEnrollRollNumbersAreScopedPerClass(t *testing.T) {
	store := newMemoryUserStore()
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	a, err := svc.Enroll(context.Background(), ashaRequest("a@example.com"), "", models.RequestMeta{})
	require.NoError(t, err)

	req := ashaRequest("b@example.com")
	req.ClassID = "class-bca-b"
	b, err := svc.Enroll(context.Background(), req, "", models.RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, "01", *a.RollNumber)
	assert.Equal(t, "01", *b.RollNumber)
}

func TestEnrollConcurrentEnrollmentsStayUnique(t *testing.T) {
	store := newMemoryUserStore()
	svc := newTestEnrollmentService(store, bcaClasses(), NewMetricsService())

	const n = 12
	var wg sync.WaitGroup
	results := make([]*models.User, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Enroll(context.Background(), ashaRequest(fmt.Sprintf("student%02d@example.com", i)), "", models.RequestMeta{})
		}(i)
	}
	wg.Wait()

	rolls := map[string]bool{}
	registrations := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		rolls[*results[i].RollNumber] = true
		registrations[*results[i].RegistrationNumber] = true
	}
	assert.Len(t, rolls, n)
	assert.Len(t, registrations, n)
	for i := 1; i <= n; i++ {
		assert.True(t, rolls[fmt.Sprintf("%02d", i)], "roll %02d missing", i)
	}
}

func TestEnrollRetriesOnRollConflict(t *testing.T) {
	store := newMemoryUserStore()
	metrics := NewMetricsService()
	svc := newTestEnrollmentService(store, bcaClasses(), metrics)

	// another request lands "01" between allocation and insert
	raced := false
	store.beforeCreate = func(u *models.User) error {
		if raced {
			return nil
		}
		raced = true
		return store.Create(context.Background(), &models.User{
			Role:               models.RoleStudent,
			Email:              "other@example.com",
			RegistrationNumber: models.StringPtr("100000"),
			RollNumber:         models.StringPtr("01"),
			ClassName:          models.StringPtr("BCA-A"),
		})
	}

	student, err := svc.Enroll(context.Background(), ashaRequest("asha@example.com"), "", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "02", *student.RollNumber)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.allocationRetries.WithLabelValues(IdentifierKindRoll)))
}

func TestEnrollRetriesOnRegistrationConflict(t *testing.T) {
	store := newMemoryUserStore()
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	calls := 0
	store.beforeCreate = func(u *models.User) error {
		calls++
		if calls == 1 {
			return repository.ErrDuplicateRegistrationNumber
		}
		return nil
	}

	student, err := svc.Enroll(context.Background(), ashaRequest("asha@example.com"), "", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, *student.RegistrationNumber, 6)
	assert.Equal(t, "01", *student.RollNumber)
}

func TestEnrollGivesUpAfterMaxAttempts(t *testing.T) {
	store := newMemoryUserStore()
	store.createErr = repository.ErrDuplicateRollNumber
	allocator := NewIdentifierAllocator(store, 3, nil, nil)
	lifecycle := NewRecordLifecycle(credential.NewManager(credential.MinCost), allocator)
	svc := NewEnrollmentService(store, bcaClasses(), lifecycle, 3, nil, nil, nil)

	_, err := svc.Enroll(context.Background(), ashaRequest("asha@example.com"), "", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIdentifierExhausted.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 3, store.creates)
}

func TestEnrollUnknownClass(t *testing.T) {
	store := newMemoryUserStore()
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	req := ashaRequest("asha@example.com")
	req.ClassID = "missing"
	_, err := svc.Enroll(context.Background(), req, "", models.RequestMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrClassNotFound.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Zero(t, store.creates)
}

func TestEnrollDuplicateEmail(t *testing.T) {
	store := newMemoryUserStore(&models.User{Role: models.RoleTeacher, Email: "asha@example.com"})
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	_, err := svc.Enroll(context.Background(), ashaRequest("  ASHA@example.com "), "", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmailExists.Code, appErrors.FromError(err).Code)
	assert.Zero(t, store.creates)
}

func TestEnrollDuplicateEmailRaceMapsToConflict(t *testing.T) {
	store := newMemoryUserStore()
	store.createErr = repository.ErrDuplicateEmail
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	_, err := svc.Enroll(context.Background(), ashaRequest("asha@example.com"), "", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmailExists.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, store.creates)
}

func TestEnrollValidation(t *testing.T) {
	svc := newTestEnrollmentService(newMemoryUserStore(), bcaClasses(), nil)

	cases := []EnrollStudentRequest{
		{Name: "", Email: "a@example.com", MobileNumber: "9876543210", ClassID: "class-bca-a"},
		{Name: "Asha", Email: "not-an-email", MobileNumber: "9876543210", ClassID: "class-bca-a"},
		{Name: "Asha", Email: "a@example.com", MobileNumber: "98765", ClassID: "class-bca-a"},
		{Name: "Asha", Email: "a@example.com", MobileNumber: "98765abcde", ClassID: "class-bca-a"},
		{Name: "Asha", Email: "a@example.com", MobileNumber: "9876543210"},
	}
	for _, req := range cases {
		_, err := svc.Enroll(context.Background(), req, "", models.RequestMeta{})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestEnrollStoreFailurePersistsNothing(t *testing.T) {
	store := newMemoryUserStore()
	store.createErr = errors.New("connection reset")
	svc := newTestEnrollmentService(store, bcaClasses(), nil)

	_, err := svc.Enroll(context.Background(), ashaRequest("asha@example.com"), "", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErrors.FromError(err).Status)

	users, _, _ := store.List(context.Background(), models.UserFilter{})
	assert.Empty(t, users)
	assert.Empty(t, store.auditActions())
}
