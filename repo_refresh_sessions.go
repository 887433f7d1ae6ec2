package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RefreshSessions interface {
	repository.Repository[*RefreshSession]

	GetByTokenHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*RefreshSession, error)

	// ConsumeTx deletes the session iff it is still live at now. It is the
	// single-use gate for rotation: of any number of calls racing on the
	// same hash, exactly one observes an affected row.
	ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, now time.Time) (*RefreshSession, error)

	DeleteByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) error
	DeleteAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, now time.Time) (int64, error)
}

type refreshSessions struct {
	repository.Repository[*RefreshSession]
	db *bun.DB
}

var (
	_ RefreshSessions                        = (*refreshSessions)(nil)
	_ repository.Repository[*RefreshSession] = (*refreshSessions)(nil)
)

func NewRefreshSessionsRepository(db *bun.DB) RefreshSessions {
	repo := repository.NewRepository[*RefreshSession](db, repository.ModelHandlers[*RefreshSession]{
		NewRecord: func() *RefreshSession { return &RefreshSession{} },
		GetID: func(s *RefreshSession) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *RefreshSession, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})

	return &refreshSessions{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshSessions) GetByTokenHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*RefreshSession, error) {
	record := &RefreshSession{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *refreshSessions) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, now time.Time) (*RefreshSession, error) {
	record, err := r.GetByTokenHashTx(ctx, tx, tokenHash)
	if err != nil {
		return nil, err
	}

	if record.Expired(now) {
		// the row is dead weight either way
		_ = r.DeleteByHashTx(ctx, tx, tokenHash)
		return nil, ErrInvalidOrExpiredToken
	}

	res, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
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

	// zero rows: a concurrent request consumed the session between our
	// read and the delete
	if affected == 0 {
		return nil, ErrInvalidOrExpiredToken
	}

	return record, nil
}

func (r *refreshSessions) DeleteByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) error {
	_, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("token_hash = ?", tokenHash).
		Exec(ctx)
	return err
}

func (r *refreshSessions) DeleteAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshSessions) DeleteExpiredTx(ctx context.Context, tx bun.IDB, now time.Time) (int64, error) {
	res, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
