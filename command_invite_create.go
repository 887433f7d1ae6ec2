package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CreateInviteMessage struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	RequestedBy string `json:"-"`
	OnResponse  func(resp *CreateInviteResponse)
}

func (e CreateInviteMessage) Type() string { return "invite.create" }

type CreateInviteResponse struct {
	Invite  *Invite
	Success bool
}

// CreateInviteHandler issues a single-use invite for an email. At most
// one live invite exists per email: an unexpired one blocks the request,
// an expired one is replaced.
type CreateInviteHandler struct {
	repo     RepositoryManager
	notifier Notifier
	links    LinkBuilder
	ttl      time.Duration
	logger   Logger
}

func NewCreateInviteHandler(repo RepositoryManager, notifier Notifier, links LinkBuilder, ttl time.Duration) *CreateInviteHandler {
	if notifier == nil {
		notifier = StdoutNotifier{}
	}
	return &CreateInviteHandler{
		repo:     repo,
		notifier: notifier,
		links:    links,
		ttl:      ttl,
		logger:   defLogger{},
	}
}

func (h *CreateInviteHandler) WithLogger(logger Logger) *CreateInviteHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CreateInviteHandler) Execute(ctx context.Context, event CreateInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invite creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateInviteHandler) execute(ctx context.Context, event CreateInviteMessage) error {
	resp := &CreateInviteResponse{}
	var plaintext string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)

	role := UserRole(event.Role)
	if role == "" {
		role = RoleAdmin
	}
	if !role.IsValid() {
		return goerrors.New("unknown or invalid role for invite", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": event.Role})
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// an account already holding the role has nothing to redeem
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, email)
		if err == nil {
			if user.Role.IsAtLeast(role) {
				return ErrAlreadyPrivileged
			}
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check invite target account")
		}

		now := time.Now()

		existing, err := h.repo.Invites().GetByEmailTx(ctx, tx, email)
		if err == nil {
			if !existing.Expired(now) {
				return ErrInviteExists
			}
			if err := h.repo.Invites().DeleteByEmailTx(ctx, tx, email); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace expired invite")
			}
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing invite")
		}

		plaintext, err = GenerateToken(LinkTokenBytes)
		if err != nil {
			return err
		}

		invite := &Invite{
			ID:          uuid.New(),
			Email:       email,
			TokenHash:   HashToken(plaintext),
			Role:        role,
			RequestedBy: event.RequestedBy,
			ExpiresAt:   now.Add(h.ttl),
		}

		if invite, err = h.repo.Invites().CreateTx(ctx, tx, invite); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create invite")
		}

		resp.Invite = invite
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invite creation transaction failed")
	}

	if err := h.notifier.InviteCreated(ctx, email, h.links.AcceptInvite(plaintext, email)); err != nil {
		h.logger.Error("failed to deliver invite notification", "error", err)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
