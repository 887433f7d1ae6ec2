package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	UserAgent  string `json:"-"`
	IP         string `json:"-"`
	UseHashid  bool
	OnResponse func(resp *AuthResult)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates a new account and signs it in. The role is
// always RoleUser; there is no payload that yields an admin here.
type RegisterUserHandler struct {
	repo       RepositoryManager
	sessions   *SessionManager
	tokens     TokenService
	bcryptCost int
}

func NewRegisterUserHandler(repo RepositoryManager, sessions *SessionManager, tokens TokenService) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:       repo,
		sessions:   sessions,
		tokens:     tokens,
		bcryptCost: DefaultBcryptCost,
	}
}

// WithBcryptCost overrides the password hashing work factor.
func (h *RegisterUserHandler) WithBcryptCost(cost int) *RegisterUserHandler {
	h.bcryptCost = cost
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	result := &AuthResult{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email := NormalizeEmail(event.Email)

		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, email); err == nil {
			return ErrEmailTaken
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing user")
		}

		hash, err := HashPasswordWithCost(event.Password, h.bcryptCost)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user := &User{
			Email:        email,
			PasswordHash: hash,
			Phone:        event.Phone,
			Role:         RoleUser,
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
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

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(result)
	}

	return nil
}
