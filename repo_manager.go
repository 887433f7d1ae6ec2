package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	RefreshSessions() RefreshSessions
	Invites() Invites
}

type mngr struct {
	db              *bun.DB
	users           Users
	refreshSessions RefreshSessions
	invites         Invites
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:              db,
		users:           NewUsersRepository(db),
		refreshSessions: NewRefreshSessionsRepository(db),
		invites:         NewInvitesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.refreshSessions == nil {
		return errors.New("repository refreshSessions should be initialized")
	}

	if m.invites == nil {
		return errors.New("repository invites should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) RefreshSessions() RefreshSessions {
	return m.refreshSessions
}

func (m mngr) Invites() Invites {
	return m.invites
}
