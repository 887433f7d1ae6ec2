package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Success bool
}

// InitializePasswordResetHandler records a pending reset for the account
// and hands the link to the notifier. The response is identical whether
// or not the email exists, so the endpoint cannot be used to enumerate
// accounts. A repeated request overwrites the prior pending reset.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	links    LinkBuilder
	ttl      time.Duration
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, notifier Notifier, links LinkBuilder, ttl time.Duration) *InitializePasswordResetHandler {
	if notifier == nil {
		notifier = StdoutNotifier{}
	}
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		links:    links,
		ttl:      ttl,
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}
	var plaintext string
	var known bool

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// succeed quietly, same shape as the known-account path
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		plaintext, err = GenerateToken(LinkTokenBytes)
		if err != nil {
			return err
		}

		if err := h.repo.Users().SetResetStateTx(ctx, tx, user.ID, HashToken(plaintext), time.Now().Add(h.ttl)); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset state")
		}

		known = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if known {
		if err := h.notifier.PasswordResetRequested(ctx, email, h.links.ResetPassword(plaintext, email)); err != nil {
			h.logger.Error("failed to deliver password reset notification", "error", err)
		}
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
