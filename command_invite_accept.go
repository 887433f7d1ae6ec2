package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type AcceptInviteMessage struct {
	Email      string `json:"email"`
	Token      string `json:"token"`
	Password   string `json:"password"`
	UserAgent  string `json:"-"`
	IP         string `json:"-"`
	UseHashid  bool
	OnResponse func(resp *AuthResult)
}

func (e AcceptInviteMessage) Type() string { return "invite.accept" }

// AcceptInviteHandler redeems an invite: consumes the token, creates the
// account or promotes the existing one to the invited role, sets the
// password, and signs the user in. Redemption and account mutation share
// one transaction.
type AcceptInviteHandler struct {
	repo       RepositoryManager
	sessions   *SessionManager
	tokens     TokenService
	bcryptCost int
}

func NewAcceptInviteHandler(repo RepositoryManager, sessions *SessionManager, tokens TokenService) *AcceptInviteHandler {
	return &AcceptInviteHandler{
		repo:       repo,
		sessions:   sessions,
		tokens:     tokens,
		bcryptCost: DefaultBcryptCost,
	}
}

// WithBcryptCost overrides the password hashing work factor.
func (h *AcceptInviteHandler) WithBcryptCost(cost int) *AcceptInviteHandler {
	h.bcryptCost = cost
	return h
}

func (h *AcceptInviteHandler) Execute(ctx context.Context, event AcceptInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invite acceptance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AcceptInviteHandler) execute(ctx context.Context, event AcceptInviteMessage) error {
	result := &AuthResult{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email := NormalizeEmail(event.Email)

		invite, err := h.repo.Invites().ConsumeTx(ctx, tx, email, HashToken(event.Token), time.Now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		hash, err := HashPasswordWithCost(event.Password, h.bcryptCost)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user, err := h.repo.Users().GetByEmailTx(ctx, tx, email)
		switch {
		case err == nil:
			// promote in place, the account keeps everything else
			record := &User{
				ID:           user.ID,
				Role:         invite.Role,
				PasswordHash: hash,
			}
			user, err = h.repo.Users().UpdateTx(ctx, tx, record, repository.UpdateByID(user.ID.String()))
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to promote invited user")
			}
		case repository.IsRecordNotFound(err):
			user = &User{
				Email:        email,
				PasswordHash: hash,
				Role:         invite.Role,
			}
			if event.UseHashid {
				if id, err := hashid.NewUUID(email); err == nil {
					user.ID = id
				}
			}
			if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create invited user")
			}
		default:
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up invited user")
		}

		plaintext, record, err := h.sessions.IssueTx(ctx, tx, user, SessionMeta{
			UserAgent: event.UserAgent,
			IP:        event.IP,
		})
		if err != nil {
			return err
		}

		access, err := h.tokens.Generate(user.Identity())
		if err != nil {
			return err
		}

		result.User = user
		result.AccessToken = access
		result.RefreshPlaintext = plaintext
		result.RefreshExpiresAt = record.ExpiresAt

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invite acceptance transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(result)
	}

	return nil
}
