package auth_test

import (
	"encoding/hex"
	"testing"

	auth "github.com/goliatone/go-blog-auth"
	"github.com/stretchr/testify/assert"
)

func TestGenerateToken(t *testing.T) {
	t.Run("returns hex of the requested entropy", func(t *testing.T) {
		token, err := auth.GenerateToken(auth.RefreshTokenBytes)

		assert.NoError(t, err)
		assert.Len(t, token, auth.RefreshTokenBytes*2)

		_, err = hex.DecodeString(token)
		assert.NoError(t, err)
	})

	t.Run("link tokens are shorter than refresh tokens", func(t *testing.T) {
		token, err := auth.GenerateToken(auth.LinkTokenBytes)

		assert.NoError(t, err)
		assert.Len(t, token, auth.LinkTokenBytes*2)
	})

	t.Run("successive tokens differ", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			token, err := auth.GenerateToken(auth.RefreshTokenBytes)
			assert.NoError(t, err)
			assert.False(t, seen[token], "token collision")
			seen[token] = true
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, auth.HashToken("some-token"), auth.HashToken("some-token"))
	})

	t.Run("is a sha256 hex digest", func(t *testing.T) {
		digest := auth.HashToken("some-token")

		assert.Len(t, digest, 64)
		assert.NotEqual(t, "some-token", digest)

		_, err := hex.DecodeString(digest)
		assert.NoError(t, err)
	})

	t.Run("distinct inputs produce distinct digests", func(t *testing.T) {
		assert.NotEqual(t, auth.HashToken("token-a"), auth.HashToken("token-b"))
	})
}
