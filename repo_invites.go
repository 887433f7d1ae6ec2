package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Invites interface {
	repository.Repository[*Invite]

	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Invite, error)

	// ConsumeTx deletes the invite iff the email/hash pair is still live
	// at now. Single-use redemption: of racing calls on the same invite,
	// exactly one observes an affected row.
	ConsumeTx(ctx context.Context, tx bun.IDB, email, tokenHash string, now time.Time) (*Invite, error)

	DeleteByEmailTx(ctx context.Context, tx bun.IDB, email string) error
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, now time.Time) (int64, error)
}

type invites struct {
	repository.Repository[*Invite]
	db *bun.DB
}

var (
	_ Invites                        = (*invites)(nil)
	_ repository.Repository[*Invite] = (*invites)(nil)
)

func NewInvitesRepository(db *bun.DB) Invites {
	repo := repository.NewRepository[*Invite](db, repository.ModelHandlers[*Invite]{
		NewRecord: func() *Invite { return &Invite{} },
		GetID: func(i *Invite) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Invite, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &invites{
		Repository: repo,
		db:         db,
	}
}

func (r *invites) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Invite, error) {
	record := &Invite{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *invites) ConsumeTx(ctx context.Context, tx bun.IDB, email, tokenHash string, now time.Time) (*Invite, error) {
	record, err := r.GetByEmailTx(ctx, tx, email)
	if err != nil {
		return nil, err
	}

	if record.TokenHash != tokenHash || record.Expired(now) {
		return nil, ErrInvalidOrExpiredToken
	}

	res, err := tx.NewDelete().
		Model((*Invite)(nil)).
		Where("email = ?", NormalizeEmail(email)).
		Where("token_hash = ?", tokenHash).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, ErrInvalidOrExpiredToken
	}

	return record, nil
}

func (r *invites) DeleteByEmailTx(ctx context.Context, tx bun.IDB, email string) error {
	_, err := tx.NewDelete().
		Model((*Invite)(nil)).
		Where("email = ?", NormalizeEmail(email)).
		Exec(ctx)
	return err
}

func (r *invites) DeleteExpiredTx(ctx context.Context, tx bun.IDB, now time.Time) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Invite)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
