package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-blog-auth"
	"github.com/stretchr/testify/assert"
)

func TestHashPasswordWithCost(t *testing.T) {
	t.Run("hashes and verifies a password", func(t *testing.T) {
		hash, err := auth.HashPasswordWithCost("sup3r-secret", 4)

		assert.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.NotEqual(t, "sup3r-secret", hash)

		assert.NoError(t, auth.ComparePasswordAndHash("sup3r-secret", hash))
	})

	t.Run("rejects empty passwords", func(t *testing.T) {
		_, err := auth.HashPasswordWithCost("", 4)
		assert.ErrorIs(t, err, auth.ErrNoEmptyString)
	})

	t.Run("clamps out of range cost to the default", func(t *testing.T) {
		hash, err := auth.HashPasswordWithCost("sup3r-secret", 99)

		assert.NoError(t, err)
		assert.NoError(t, auth.ComparePasswordAndHash("sup3r-secret", hash))
	})
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := auth.HashPasswordWithCost("correct-horse", 4)
	assert.NoError(t, err)

	t.Run("wrong password fails with mismatch error", func(t *testing.T) {
		err := auth.ComparePasswordAndHash("battery-staple", hash)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})

	t.Run("garbage hash fails", func(t *testing.T) {
		err := auth.ComparePasswordAndHash("correct-horse", "not-a-bcrypt-hash")
		assert.Error(t, err)
	})
}
