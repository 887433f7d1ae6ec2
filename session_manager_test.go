package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-blog-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestSessionManager_Issue(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()

	ctx := context.Background()
	user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)

	manager := auth.NewSessionManager(repo, 30*24*time.Hour, nil)

	plaintext, record, err := manager.Issue(ctx, user, auth.SessionMeta{
		UserAgent: "test-agent",
		IP:        "127.0.0.1",
	})

	require.NoError(t, err)
	assert.Len(t, plaintext, auth.RefreshTokenBytes*2)

	assert.Equal(t, user.ID, record.UserID)
	assert.Equal(t, "test-agent", record.UserAgent)
	assert.Equal(t, "127.0.0.1", record.IP)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), record.ExpiresAt, 5*time.Second)

	// only the digest is stored
	assert.Equal(t, auth.HashToken(plaintext), record.TokenHash)
	assert.NotContains(t, record.TokenHash, plaintext)
}

func TestSessionManager_Rotate(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a replacement and invalidates the old token", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)
		manager := auth.NewSessionManager(repo, time.Hour, nil)

		plaintext, _, err := manager.Issue(ctx, user, auth.SessionMeta{})
		require.NoError(t, err)

		result, err := manager.Rotate(ctx, plaintext, auth.SessionMeta{UserAgent: "next-agent"})
		require.NoError(t, err)

		assert.Equal(t, user.ID, result.User.ID)
		assert.NotEmpty(t, result.RefreshPlaintext)
		assert.NotEqual(t, plaintext, result.RefreshPlaintext)

		// the consumed token is spent
		_, err = manager.Rotate(ctx, plaintext, auth.SessionMeta{})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

		// the replacement still works
		_, err = manager.Rotate(ctx, result.RefreshPlaintext, auth.SessionMeta{})
		assert.NoError(t, err)
	})

	t.Run("rejects unknown tokens", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		manager := auth.NewSessionManager(repo, time.Hour, nil)

		_, err := manager.Rotate(ctx, "never-issued", auth.SessionMeta{})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)

		// sessions born expired
		expired := auth.NewSessionManager(repo, -time.Minute, nil)
		plaintext, _, err := expired.Issue(ctx, user, auth.SessionMeta{})
		require.NoError(t, err)

		manager := auth.NewSessionManager(repo, time.Hour, nil)
		_, err = manager.Rotate(ctx, plaintext, auth.SessionMeta{})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("exactly one of two racing rotations wins", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)
		manager := auth.NewSessionManager(repo, time.Hour, nil)

		plaintext, _, err := manager.Issue(ctx, user, auth.SessionMeta{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = manager.Rotate(ctx, plaintext, auth.SessionMeta{})
			}(i)
		}
		wg.Wait()

		var won, lost int
		for _, err := range errs {
			if err == nil {
				won++
			} else {
				assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
				lost++
			}
		}

		assert.Equal(t, 1, won)
		assert.Equal(t, 1, lost)
	})
}

func TestSessionManager_Revoke(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()

	ctx := context.Background()
	user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)
	manager := auth.NewSessionManager(repo, time.Hour, nil)

	plaintext, _, err := manager.Issue(ctx, user, auth.SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(ctx, plaintext))

	_, err = manager.Rotate(ctx, plaintext, auth.SessionMeta{})
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

	// revoking again, or revoking nothing, is a no-op
	assert.NoError(t, manager.Revoke(ctx, plaintext))
	assert.NoError(t, manager.Revoke(ctx, ""))
}

func TestSessionManager_RevokeAll(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()

	ctx := context.Background()
	user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)
	other := createUser(t, repo, "other@example.com", "sup3r-secret", auth.RoleUser)
	manager := auth.NewSessionManager(repo, time.Hour, nil)

	tokens := make([]string, 3)
	for i := range tokens {
		plaintext, _, err := manager.Issue(ctx, user, auth.SessionMeta{})
		require.NoError(t, err)
		tokens[i] = plaintext
	}

	otherToken, _, err := manager.Issue(ctx, other, auth.SessionMeta{})
	require.NoError(t, err)

	var revoked int64
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		revoked, err = manager.RevokeAllTx(ctx, tx, user.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)

	for _, plaintext := range tokens {
		_, err := manager.Rotate(ctx, plaintext, auth.SessionMeta{})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	}

	// the other account's session is untouched
	_, err = manager.Rotate(ctx, otherToken, auth.SessionMeta{})
	assert.NoError(t, err)
}

func TestSessionManager_PruneExpired(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()

	ctx := context.Background()
	user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)

	expired := auth.NewSessionManager(repo, -time.Minute, nil)
	manager := auth.NewSessionManager(repo, time.Hour, nil)

	for i := 0; i < 2; i++ {
		_, _, err := expired.Issue(ctx, user, auth.SessionMeta{})
		require.NoError(t, err)
	}
	live, _, err := manager.Issue(ctx, user, auth.SessionMeta{})
	require.NoError(t, err)

	pruned, err := manager.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	// the live session survives the sweep
	_, err = manager.Rotate(ctx, live, auth.SessionMeta{})
	assert.NoError(t, err)
}

func TestSessionManager_RotateAfterUserDeleted(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()

	ctx := context.Background()
	user := createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)
	manager := auth.NewSessionManager(repo, time.Hour, nil)

	plaintext, _, err := manager.Issue(ctx, user, auth.SessionMeta{})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*auth.User)(nil)).
			Where("id = ?", user.ID).
			Exec(ctx)
		return err
	})
	require.NoError(t, err)

	_, err = manager.Rotate(ctx, plaintext, auth.SessionMeta{})
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}
