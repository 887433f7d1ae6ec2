package auth_test

import (
	"context"
	"database/sql"
	"net/url"
	"sync"
	"testing"

	auth "github.com/goliatone/go-blog-auth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    user_role TEXT NOT NULL DEFAULT 'user',
    phone TEXT,
    password_hash TEXT NOT NULL,
    login_attempts INTEGER DEFAULT 0,
    login_attempt_at TIMESTAMP,
    loggedin_at TIMESTAMP,
    reset_token_hash TEXT,
    reset_expires_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`

	sqliteCreateRefreshSessions = `CREATE TABLE refresh_sessions (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token_hash TEXT NOT NULL UNIQUE,
    user_agent TEXT,
    ip TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

	sqliteCreateInvites = `CREATE TABLE invites (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    token_hash TEXT NOT NULL,
    user_role TEXT NOT NULL DEFAULT 'admin',
    requested_by TEXT,
    expires_at TIMESTAMP NOT NULL,
    accepted_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
)

func setupRepo(t *testing.T) (auth.RepositoryManager, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, stmt := range []string{sqliteCreateUsers, sqliteCreateRefreshSessions, sqliteCreateInvites} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return auth.NewRepositoryManager(bunDB), cleanup
}

func createUser(t *testing.T, repo auth.RepositoryManager, email, password string, role auth.UserRole) *auth.User {
	t.Helper()

	hash, err := auth.HashPasswordWithCost(password, 4)
	require.NoError(t, err)

	user, err := repo.Users().Register(context.Background(), &auth.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	require.NoError(t, err)

	return user
}

// capturingNotifier records delivered links so tests can redeem tokens.
type capturingNotifier struct {
	mu         sync.Mutex
	inviteLink string
	resetLink  string
	calls      int
}

func (n *capturingNotifier) InviteCreated(_ context.Context, _ string, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inviteLink = link
	n.calls++
	return nil
}

func (n *capturingNotifier) PasswordResetRequested(_ context.Context, _ string, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetLink = link
	n.calls++
	return nil
}

// tokenFromLink pulls the plaintext token out of a delivered link.
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)

	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	return token
}

func (n *capturingNotifier) resetCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}
