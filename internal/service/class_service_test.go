package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/college-portal-api/internal/models"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type memoryClassRepo struct {
	classes map[string]*models.Class
	finds   int
}

func (m *memoryClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memoryClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	m.finds++
	if c, ok := m.classes[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryClassRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	for _, c := range m.classes {
		if strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = "class-" + strings.ToLower(class.Name)
	copy := *class
	m.classes[class.ID] = &copy
	return nil
}

func newClassFixture() (*ClassService, *memoryClassRepo, *memoryCache) {
	repo := &memoryClassRepo{classes: map[string]*models.Class{
		"class-bca-a": {ID: "class-bca-a", Name: "BCA-A", CourseName: "Bachelor of Computer Applications"},
	}}
	cache := newMemoryCache()
	cacheSvc := NewCacheService(cache, nil, time.Minute, zap.NewNop(), true)
	return NewClassService(repo, cacheSvc, nil, zap.NewNop()), repo, cache
}

func TestClassGetReadsThroughCache(t *testing.T) {
	svc, repo, _ := newClassFixture()

	first, err := svc.Get(context.Background(), "class-bca-a")
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), "class-bca-a")
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, 1, repo.finds)
}

type unreachableCache struct {
	*memoryCache
}

func (u *unreachableCache) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("redis: connection refused")
}

func TestClassGetFallsThroughWhenCacheUnreachable(t *testing.T) {
	repo := &memoryClassRepo{classes: map[string]*models.Class{
		"class-bca-a": {ID: "class-bca-a", Name: "BCA-A", CourseName: "Bachelor of Computer Applications"},
	}}
	core, logs := observer.New(zap.WarnLevel)
	cacheSvc := NewCacheService(&unreachableCache{memoryCache: newMemoryCache()}, nil, time.Minute, zap.New(core), true)

	hit, err := cacheSvc.Get(context.Background(), "class:class-bca-a", &models.Class{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, logs.FilterMessage("cache get failed").Len())

	svc := NewClassService(repo, cacheSvc, nil, zap.NewNop())
	class, err := svc.Get(context.Background(), "class-bca-a")
	require.NoError(t, err)
	assert.Equal(t, "BCA-A", class.Name)
	assert.Equal(t, 1, repo.finds)
}

func TestClassGetNotFound(t *testing.T) {
	svc, _, _ := newClassFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassGetWithoutCache(t *testing.T) {
	repo := &memoryClassRepo{classes: map[string]*models.Class{"c1": {ID: "c1", Name: "MCA-A"}}}
	svc := NewClassService(repo, nil, nil, nil)

	_, err := svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.finds)
}

func TestClassCreateInvalidatesCache(t *testing.T) {
	svc, _, cache := newClassFixture()
	_, err := svc.Get(context.Background(), "class-bca-a")
	require.NoError(t, err)
	require.Len(t, cache.entries, 1)

	created, err := svc.Create(context.Background(), CreateClassRequest{Name: " BCA-B ", CourseName: "Bachelor of Computer Applications"})
	require.NoError(t, err)
	assert.Equal(t, "BCA-B", created.Name)
	assert.Equal(t, []string{"classes:*"}, cache.invalidated)
	assert.Empty(t, cache.entries)
}

func TestClassCreateDuplicateName(t *testing.T) {
	svc, _, _ := newClassFixture()

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "bca-a", CourseName: "BCA"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
