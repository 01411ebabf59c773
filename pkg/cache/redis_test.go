package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	client, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, Ping(context.Background(), client))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := Ping(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
	assert.NoError(t, mock.ExpectationsWereMet())
}
