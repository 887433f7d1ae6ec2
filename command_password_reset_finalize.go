package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Email      string `json:"email"`
	Token      string `json:"token"`
	Password   string `json:"password"`
	UserAgent  string `json:"-"`
	IP         string `json:"-"`
	OnResponse func(resp *AuthResult)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler redeems a pending reset: installs the new
// password, clears the reset state, revokes every refresh session the
// user holds, and issues one fresh session. All of it is a single
// transaction keyed on a conditional update, so a token can be spent at
// most once.
type FinalizePasswordResetHandler struct {
	repo       RepositoryManager
	sessions   *SessionManager
	tokens     TokenService
	bcryptCost int
	logger     Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, sessions *SessionManager, tokens TokenService) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:       repo,
		sessions:   sessions,
		tokens:     tokens,
		bcryptCost: DefaultBcryptCost,
		logger:     defLogger{},
	}
}

// WithBcryptCost overrides the password hashing work factor.
func (h *FinalizePasswordResetHandler) WithBcryptCost(cost int) *FinalizePasswordResetHandler {
	h.bcryptCost = cost
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	result := &AuthResult{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email := NormalizeEmail(event.Email)

		user, err := h.repo.Users().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOrExpiredToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account for password reset")
		}

		passwordHash, err := HashPasswordWithCost(event.Password, h.bcryptCost)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid new password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
		}

		user, err = h.repo.Users().ConsumeResetTx(ctx, tx, user.ID, HashToken(event.Token), passwordHash, time.Now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOrExpiredToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem password reset")
		}

		// the credential changed, nothing issued before it survives
		revoked, err := h.sessions.RevokeAllTx(ctx, tx, user.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh sessions")
		}
		if revoked > 0 {
			h.logger.Debug("revoked refresh sessions after password reset", "count", revoked)
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(result)
	}

	return nil
}
