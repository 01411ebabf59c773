package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-portal-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "role", "name", "email", "mobile_number", "password_hash", "registration_number", "roll_number", "class_id", "class_name", "course_name", "photo_ref", "last_login", "created_at", "updated_at"}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", string(models.RoleClerk), "Clerk", "clerk@example.com", "9876543210", "hash", nil, nil, nil, nil, nil, nil, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("clerk@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "clerk@example.com")
	require.NoError(t, err)
	assert.Equal(t, "clerk@example.com", user.Email)
	assert.Equal(t, models.RoleClerk, user.Role)
	require.NotNil(t, user.PasswordHash)
	assert.Equal(t, "hash", *user.PasswordHash)
	assert.Nil(t, user.RegistrationNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByEmail(context.Background(), "missing@example.com")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByRegistrationNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE registration_number = $1 LIMIT 1")).
		WithArgs("123456").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE registration_number = $1 LIMIT 1")).
		WithArgs("654321").
		WillReturnError(sql.ErrNoRows)

	taken, err := repo.ExistsByRegistrationNumber(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.ExistsByRegistrationNumber(context.Background(), "654321")
	require.NoError(t, err)
	assert.False(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaxRollNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(CAST(roll_number AS INTEGER)), 0) FROM users WHERE role = 'student' AND class_name = $1")).
		WithArgs("BCA-A").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(10))

	highest, err := repo.MaxRollNumber(context.Background(), "BCA-A")
	require.NoError(t, err)
	assert.Equal(t, 10, highest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows(userRowColumns).
		AddRow("1", string(models.RoleStudent), "Asha Rao", "asha@example.com", "9876543210", nil, "123456", "01", "c1", "BCA-A", "BCA", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE 1=1 AND class_name = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("BCA-A").
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND class_name = $1")).
		WithArgs("BCA-A").
		WillReturnRows(countRows)

	users, total, err := repo.List(context.Background(), models.UserFilter{ClassName: "BCA-A"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "01", models.StringValue(users[0].RollNumber))
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStudentsByClassOrdersNumerically(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY CAST(roll_number AS INTEGER) ASC")).
		WithArgs("BCA-A").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	users, err := repo.ListStudentsByClass(context.Background(), "BCA-A")
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Role: models.RoleStudent, Name: "Asha Rao", Email: "asha@example.com", MobileNumber: "9876543210"}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserMapsUniqueViolations(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{constraint: "users_email_key", want: ErrDuplicateEmail},
		{constraint: "users_registration_number_key", want: ErrDuplicateRegistrationNumber},
		{constraint: "users_class_roll_number_key", want: ErrDuplicateRollNumber},
	}

	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			db, mock, cleanup := newMock(t)
			defer cleanup()
			repo := NewUserRepository(db)

			mock.ExpectExec("INSERT INTO users").
				WillReturnError(&pq.Error{Code: "23505", Constraint: tc.constraint})

			err := repo.Create(context.Background(), &models.User{Role: models.RoleStudent, Email: "asha@example.com"})
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateUserWrapsOtherErrors(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(sql.ErrConnDone)

	err := repo.Create(context.Background(), &models.User{Role: models.RoleAdmin, Email: "admin@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestDeleteUserIsHardDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
