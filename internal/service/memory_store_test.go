package service

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/repository"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

// memoryUserStore mimics the users table including its unique indexes.
type memoryUserStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	auditLogs []*models.AuditLog

	createErr    error
	findErr      error
	beforeCreate func(u *models.User) error
	creates      int
	lastLogins   map[string]time.Time
}

func newMemoryUserStore(users ...*models.User) *memoryUserStore {
	m := &memoryUserStore{users: map[string]*models.User{}, lastLogins: map[string]time.Time{}}
	for _, u := range users {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		copy := *u
		m.users[u.ID] = &copy
	}
	return m
}

func (m *memoryUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u, ok := m.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserStore) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUserStore) ExistsByRegistrationNumber(ctx context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if models.StringValue(u.RegistrationNumber) == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUserStore) MaxRollNumber(ctx context.Context, className string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	highest := 0
	for _, u := range m.users {
		if u.Role != models.RoleStudent || models.StringValue(u.ClassName) != className {
			continue
		}
		n, err := strconv.Atoi(models.StringValue(u.RollNumber))
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (m *memoryUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, u.Role) {
			continue
		}
		if filter.ClassName != "" && models.StringValue(u.ClassName) != filter.ClassName {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, len(out), nil
}

func (m *memoryUserStore) ListStudentsByClass(ctx context.Context, className string) ([]models.User, error) {
	users, _, err := m.List(ctx, models.UserFilter{Roles: []models.UserRole{models.RoleStudent}, ClassName: className})
	sort.Slice(users, func(i, j int) bool {
		a, _ := strconv.Atoi(models.StringValue(users[i].RollNumber))
		b, _ := strconv.Atoi(models.StringValue(users[j].RollNumber))
		return a < b
	})
	return users, err
}

func (m *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	if m.beforeCreate != nil {
		if err := m.beforeCreate(user); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
		if user.RegistrationNumber != nil && models.StringValue(existing.RegistrationNumber) == *user.RegistrationNumber {
			return repository.ErrDuplicateRegistrationNumber
		}
		if user.Role == models.RoleStudent && existing.Role == models.RoleStudent &&
			models.StringValue(existing.ClassName) == models.StringValue(user.ClassName) &&
			models.StringValue(existing.RollNumber) == models.StringValue(user.RollNumber) {
			return repository.ErrDuplicateRollNumber
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *memoryUserStore) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	for id, existing := range m.users {
		if id != user.ID && existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	stored.Name = user.Name
	stored.Email = user.Email
	stored.MobileNumber = user.MobileNumber
	stored.PasswordHash = user.PasswordHash
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogins[id] = ts
	return nil
}

func (m *memoryUserStore) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PasswordHash = &passwordHash
		u.UpdatedAt = updatedAt
	}
	return nil
}

func (m *memoryUserStore) UpdatePhoto(ctx context.Context, id string, photoRef *string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PhotoRef = photoRef
		u.UpdatedAt = updatedAt
	}
	return nil
}

func (m *memoryUserStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memoryUserStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *memoryUserStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.auditLogs))
	for _, entry := range m.auditLogs {
		actions = append(actions, entry.Action)
	}
	return actions
}

func containsRole(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type fakeClassLookup struct {
	classes map[string]*models.Class
	err     error
}

func (f *fakeClassLookup) Get(ctx context.Context, id string) (*models.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	if class, ok := f.classes[id]; ok {
		copy := *class
		return &copy, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
}

func bcaClasses() *fakeClassLookup {
	return &fakeClassLookup{classes: map[string]*models.Class{
		"class-bca-a": {ID: "class-bca-a", Name: "BCA-A", CourseName: "Bachelor of Computer Applications"},
		"class-bca-b": {ID: "class-bca-b", Name: "BCA-B", CourseName: "Bachelor of Computer Applications"},
	}}
}
