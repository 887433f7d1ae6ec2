package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionManager owns the refresh-session lifecycle: issue, rotate,
// revoke, prune. Plaintext tokens exist only in transit; the store sees
// sha256 digests.
type SessionManager struct {
	repo   RepositoryManager
	ttl    time.Duration
	logger Logger
}

// NewSessionManager creates a SessionManager with the given session TTL.
func NewSessionManager(repo RepositoryManager, ttl time.Duration, logger Logger) *SessionManager {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionManager{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
	}
}

// Issue mints a fresh session for the user and returns the plaintext the
// client keeps, alongside the stored record.
func (m *SessionManager) Issue(ctx context.Context, user *User, meta SessionMeta) (string, *RefreshSession, error) {
	var plaintext string
	var record *RefreshSession

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		plaintext, record, err = m.IssueTx(ctx, tx, user, meta)
		return err
	})
	if err != nil {
		return "", nil, err
	}

	return plaintext, record, nil
}

// IssueTx is Issue inside an existing transaction, for flows that issue a
// session as part of a larger atomic step (registration, invite
// acceptance, password reset).
func (m *SessionManager) IssueTx(ctx context.Context, tx bun.IDB, user *User, meta SessionMeta) (string, *RefreshSession, error) {
	plaintext, err := GenerateToken(RefreshTokenBytes)
	if err != nil {
		return "", nil, err
	}

	record := &RefreshSession{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(plaintext),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: time.Now().Add(m.ttl),
	}

	record, err = m.repo.RefreshSessions().CreateTx(ctx, tx, record)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh session")
	}

	return plaintext, record, nil
}

// Rotate atomically consumes the presented plaintext and issues a
// replacement for the same user. Unknown, expired, and already-consumed
// tokens all fail identically; role and account state come from a fresh
// read of the user, never from the old session.
func (m *SessionManager) Rotate(ctx context.Context, plaintext string, meta SessionMeta) (*AuthResult, error) {
	var user *User
	var nextPlaintext string
	var next *RefreshSession

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		consumed, err := m.repo.RefreshSessions().ConsumeTx(ctx, tx, HashToken(plaintext), time.Now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		user, err = m.repo.Users().GetByIdentifierTx(ctx, tx, consumed.UserID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// session survived its user; treat as revoked
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		nextPlaintext, next, err = m.IssueTx(ctx, tx, user, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:             user,
		RefreshPlaintext: nextPlaintext,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Revoke deletes the session matching the plaintext. Revoking an unknown
// or already-revoked token is a no-op.
func (m *SessionManager) Revoke(ctx context.Context, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.repo.RefreshSessions().DeleteByHashTx(ctx, tx, HashToken(plaintext))
	})
}

// RevokeAllTx removes every session the user holds, returning the count.
func (m *SessionManager) RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	return m.repo.RefreshSessions().DeleteAllForUserTx(ctx, tx, userID)
}

// PruneExpired removes sessions past their expiry. Invoked
// opportunistically on login and refresh; there is no background sweeper.
func (m *SessionManager) PruneExpired(ctx context.Context) (int64, error) {
	var pruned int64
	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		pruned, err = m.repo.RefreshSessions().DeleteExpiredTx(ctx, tx, time.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		m.logger.Debug("pruned expired refresh sessions", "count", pruned)
	}
	return pruned, nil
}
