package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-blog-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLinks = auth.NewLinkBuilder("http://localhost:3000")

func TestCreateInviteHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an invite and delivers the link", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		notifier := &capturingNotifier{}
		handler := auth.NewCreateInviteHandler(repo, notifier, testLinks, 24*time.Hour)

		var resp *auth.CreateInviteResponse
		err := handler.Execute(ctx, auth.CreateInviteMessage{
			Email:       "Editor@Example.COM",
			RequestedBy: "admin-1",
			OnResponse: func(r *auth.CreateInviteResponse) {
				resp = r
			},
		})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)

		assert.Equal(t, "editor@example.com", resp.Invite.Email)
		assert.Equal(t, auth.RoleAdmin, resp.Invite.Role)
		assert.Equal(t, "admin-1", resp.Invite.RequestedBy)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.Invite.ExpiresAt, 5*time.Second)

		// only the digest of the delivered token is stored
		token := tokenFromLink(t, notifier.inviteLink)
		assert.Equal(t, auth.HashToken(token), resp.Invite.TokenHash)
		assert.NotEqual(t, token, resp.Invite.TokenHash)
	})

	t.Run("rejects a second invite while one is outstanding", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		handler := auth.NewCreateInviteHandler(repo, &capturingNotifier{}, testLinks, 24*time.Hour)

		require.NoError(t, handler.Execute(ctx, auth.CreateInviteMessage{Email: "editor@example.com"}))

		err := handler.Execute(ctx, auth.CreateInviteMessage{Email: "editor@example.com"})
		assert.ErrorIs(t, err, auth.ErrInviteExists)
	})

	t.Run("replaces an expired invite", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		notifier := &capturingNotifier{}
		expired := auth.NewCreateInviteHandler(repo, notifier, testLinks, -time.Hour)
		require.NoError(t, expired.Execute(ctx, auth.CreateInviteMessage{Email: "editor@example.com"}))

		staleToken := tokenFromLink(t, notifier.inviteLink)

		handler := auth.NewCreateInviteHandler(repo, notifier, testLinks, 24*time.Hour)
		var resp *auth.CreateInviteResponse
		err := handler.Execute(ctx, auth.CreateInviteMessage{
			Email: "editor@example.com",
			OnResponse: func(r *auth.CreateInviteResponse) {
				resp = r
			},
		})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.NotEqual(t, auth.HashToken(staleToken), resp.Invite.TokenHash)
	})

	t.Run("rejects an account that already holds the role", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		createUser(t, repo, "boss@example.com", "sup3r-secret", auth.RoleAdmin)

		handler := auth.NewCreateInviteHandler(repo, &capturingNotifier{}, testLinks, 24*time.Hour)

		err := handler.Execute(ctx, auth.CreateInviteMessage{Email: "boss@example.com"})
		assert.ErrorIs(t, err, auth.ErrAlreadyPrivileged)
	})

	t.Run("allows inviting an existing regular user to admin", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		createUser(t, repo, "reader@example.com", "sup3r-secret", auth.RoleUser)

		handler := auth.NewCreateInviteHandler(repo, &capturingNotifier{}, testLinks, 24*time.Hour)

		err := handler.Execute(ctx, auth.CreateInviteMessage{Email: "reader@example.com"})
		assert.NoError(t, err)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		handler := auth.NewCreateInviteHandler(repo, &capturingNotifier{}, testLinks, 24*time.Hour)

		err := handler.Execute(ctx, auth.CreateInviteMessage{
			Email: "editor@example.com",
			Role:  "superuser",
		})
		assert.Error(t, err)
	})
}

func TestAcceptInviteHandler(t *testing.T) {
	ctx := context.Background()

	issueInvite := func(t *testing.T, repo auth.RepositoryManager, email string, ttl time.Duration) string {
		t.Helper()
		notifier := &capturingNotifier{}
		handler := auth.NewCreateInviteHandler(repo, notifier, testLinks, ttl)
		require.NoError(t, handler.Execute(ctx, auth.CreateInviteMessage{Email: email}))
		return tokenFromLink(t, notifier.inviteLink)
	}

	t.Run("creates the account with the invited role and signs it in", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		token := issueInvite(t, repo, "editor@example.com", 24*time.Hour)

		sessions := auth.NewSessionManager(repo, time.Hour, nil)
		tokens := newTokenService()
		handler := auth.NewAcceptInviteHandler(repo, sessions, tokens).WithBcryptCost(4)

		var result *auth.AuthResult
		err := handler.Execute(ctx, auth.AcceptInviteMessage{
			Email:    "editor@example.com",
			Token:    token,
			Password: "sup3r-secret",
			OnResponse: func(resp *auth.AuthResult) {
				result = resp
			},
		})

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, auth.RoleAdmin, result.User.Role)
		assert.NotEmpty(t, result.AccessToken)

		claims, err := tokens.Validate(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Role())

		_, err = sessions.Rotate(ctx, result.RefreshPlaintext, auth.SessionMeta{})
		assert.NoError(t, err)
	})

	t.Run("promotes an existing user in place", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		existing := createUser(t, repo, "reader@example.com", "old-password", auth.RoleUser)
		token := issueInvite(t, repo, "reader@example.com", 24*time.Hour)

		sessions := auth.NewSessionManager(repo, time.Hour, nil)
		handler := auth.NewAcceptInviteHandler(repo, sessions, newTokenService()).WithBcryptCost(4)

		var result *auth.AuthResult
		err := handler.Execute(ctx, auth.AcceptInviteMessage{
			Email:    "reader@example.com",
			Token:    token,
			Password: "new-password",
			OnResponse: func(resp *auth.AuthResult) {
				result = resp
			},
		})

		require.NoError(t, err)
		assert.Equal(t, existing.ID, result.User.ID)

		promoted, err := repo.Users().GetByEmail(ctx, "reader@example.com")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, promoted.Role)
		assert.NoError(t, auth.ComparePasswordAndHash("new-password", promoted.PasswordHash))
		assert.ErrorIs(t,
			auth.ComparePasswordAndHash("old-password", promoted.PasswordHash),
			auth.ErrMismatchedHashAndPassword,
		)
	})

	t.Run("a token can only be redeemed once", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		token := issueInvite(t, repo, "editor@example.com", 24*time.Hour)

		sessions := auth.NewSessionManager(repo, time.Hour, nil)
		handler := auth.NewAcceptInviteHandler(repo, sessions, newTokenService()).WithBcryptCost(4)

		msg := auth.AcceptInviteMessage{
			Email:    "editor@example.com",
			Token:    token,
			Password: "sup3r-secret",
		}

		require.NoError(t, handler.Execute(ctx, msg))

		err := handler.Execute(ctx, msg)
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		issueInvite(t, repo, "editor@example.com", 24*time.Hour)

		sessions := auth.NewSessionManager(repo, time.Hour, nil)
		handler := auth.NewAcceptInviteHandler(repo, sessions, newTokenService()).WithBcryptCost(4)

		err := handler.Execute(ctx, auth.AcceptInviteMessage{
			Email:    "editor@example.com",
			Token:    "not-the-issued-token",
			Password: "sup3r-secret",
		})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("rejects an expired invite", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		token := issueInvite(t, repo, "editor@example.com", -time.Hour)

		sessions := auth.NewSessionManager(repo, time.Hour, nil)
		handler := auth.NewAcceptInviteHandler(repo, sessions, newTokenService()).WithBcryptCost(4)

		err := handler.Execute(ctx, auth.AcceptInviteMessage{
			Email:    "editor@example.com",
			Token:    token,
			Password: "sup3r-secret",
		})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("rejects an email without an invite", func(t *testing.T) {
		repo, cleanup := setupRepo(t)
		defer cleanup()

		sessions := auth.NewSessionManager(repo, time.Hour, nil)
		handler := auth.NewAcceptInviteHandler(repo, sessions, newTokenService()).WithBcryptCost(4)

		err := handler.Execute(ctx, auth.AcceptInviteMessage{
			Email:    "stranger@example.com",
			Token:    "whatever",
			Password: "sup3r-secret",
		})
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})
}
