package repository

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-portal-api/internal/models"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

func TestCacheRepositoryGetHitAndMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectGet("classes:c1").SetVal(`{"id":"c1","name":"BCA-A","course_name":"BCA"}`)
	mock.ExpectGet("classes:c2").RedisNil()

	var class models.Class
	require.NoError(t, repo.Get(context.Background(), "classes:c1", &class))
	assert.Equal(t, "BCA-A", class.Name)

	err := repo.Get(context.Background(), "classes:c2", &class)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryEvictsUndecodableEntries(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectGet("classes:c1").SetVal(`not-json`)
	mock.ExpectDel("classes:c1").SetVal(1)

	var class models.Class
	err := repo.Get(context.Background(), "classes:c1", &class)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositorySet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectSet("classes:c1", []byte(`{"id":"c1"}`), time.Minute).SetVal("OK")

	require.NoError(t, repo.Set(context.Background(), "classes:c1", map[string]string{"id": "c1"}, time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)

	mock.ExpectScan(0, "classes:*", scanBatchSize).SetVal([]string{"classes:c1", "classes:c2"}, 7)
	mock.ExpectDel("classes:c1", "classes:c2").SetVal(2)
	mock.ExpectScan(7, "classes:*", scanBatchSize).SetVal([]string{}, 0)

	require.NoError(t, repo.DeleteByPattern(context.Background(), "classes:*"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)

	var class models.Class
	assert.ErrorIs(t, repo.Get(context.Background(), "classes:c1", &class), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "classes:c1", class, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "classes:*"))
}
