package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestManagerHashAndVerify(t *testing.T) {
	m := NewManager(MinCost)

	hash, err := m.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, m.IsHash(hash))
	assert.True(t, m.Verify("s3cret-pass", hash))
	assert.False(t, m.Verify("s3cret-pasS", hash))
	assert.False(t, m.Verify("", hash))
}

func TestManagerHashIfNeededIsIdempotent(t *testing.T) {
	m := NewManager(MinCost)

	first, err := m.HashIfNeeded("plain-password")
	require.NoError(t, err)

	second, err := m.HashIfNeeded(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, m.Verify("plain-password", second))
}

func TestManagerRejectsEmptyPlaintext(t *testing.T) {
	m := NewManager(MinCost)

	_, err := m.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = m.HashIfNeeded("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestManagerVerifyMissingHash(t *testing.T) {
	m := NewManager(MinCost)
	assert.False(t, m.Verify("anything", ""))
	assert.False(t, m.Verify("anything", "not-a-hash"))
}

func TestManagerIsHash(t *testing.T) {
	m := NewManager(MinCost)
	external, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, m.IsHash(string(external)))
	assert.True(t, m.IsHash("$2b$10$"+strings.Repeat("a", 53)))
	assert.False(t, m.IsHash("$2b$10$"+strings.Repeat("a", 52)))
	assert.False(t, m.IsHash("$1$10$"+strings.Repeat("a", 53)))
	assert.False(t, m.IsHash("plaintext"))
	assert.False(t, m.IsHash(""))
}

func TestNewManagerClampsCost(t *testing.T) {
	assert.Equal(t, MinCost, NewManager(4).Cost())
	assert.Equal(t, 12, NewManager(12).Cost())
	assert.Equal(t, bcrypt.MaxCost, NewManager(99).Cost())
}
