package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// AuthControllerRoutes are the gateway paths, overridable per deployment.
type AuthControllerRoutes struct {
	Register       string
	Login          string
	AdminLogin     string
	Refresh        string
	Logout         string
	ForgotPassword string
	ResetPassword  string
	Invite         string
	AcceptInvite   string
	Me             string
}

// AuthController is the REST gateway over the auth core. Every handler
// binds and validates its payload, invokes the corresponding command or
// authenticator operation, and maps failures to the JSON error envelope.
type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auther   *RouteAuthenticator
	Notifier Notifier
	Routes   *AuthControllerRoutes

	registerUser  *RegisterUserHandler
	createInvite  *CreateInviteHandler
	acceptInvite  *AcceptInviteHandler
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerNotifier(notifier Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = notifier
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:       "/auth/register",
			Login:          "/auth/login",
			AdminLogin:     "/auth/admin/login",
			Refresh:        "/auth/refresh",
			Logout:         "/auth/logout",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
			Invite:         "/auth/invite",
			AcceptInvite:   "/auth/accept-invite",
			Me:             "/auth/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Notifier == nil {
		c.Notifier = StdoutNotifier{}
	}

	cfg := c.Auther.cfg
	links := NewLinkBuilder(cfg.FrontendURL)
	sessions := c.Auther.Auther().Sessions()
	tokens := c.Auther.Auther().TokenService()

	c.registerUser = NewRegisterUserHandler(c.Repo, sessions, tokens).
		WithBcryptCost(cfg.BcryptCost)
	c.createInvite = NewCreateInviteHandler(c.Repo, c.Notifier, links, cfg.InviteTTL()).
		WithLogger(c.Logger)
	c.acceptInvite = NewAcceptInviteHandler(c.Repo, sessions, tokens).
		WithBcryptCost(cfg.BcryptCost)
	c.resetInit = NewInitializePasswordResetHandler(c.Repo, c.Notifier, links, cfg.ResetTTL()).
		WithLogger(c.Logger)
	c.resetFinalize = NewFinalizePasswordResetHandler(c.Repo, sessions, tokens).
		WithBcryptCost(cfg.BcryptCost).
		WithLogger(c.Logger)

	return c
}

// RegisterAuthRoutes mounts the gateway on the router.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	protected := controller.Auther.ProtectedRoute(nil)
	admin := controller.Auther.AdminRoute(nil)

	app.Post(controller.Routes.Register, controller.Register).SetName("auth.register")
	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.AdminLogin, controller.AdminLogin).SetName("auth.admin-login")
	app.Post(controller.Routes.Refresh, controller.Refresh).SetName("auth.refresh")
	app.Post(controller.Routes.Logout, controller.Logout).SetName("auth.logout")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).SetName("auth.forgot-password")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).SetName("auth.reset-password")
	app.Post(controller.Routes.AcceptInvite, controller.AcceptInvite).SetName("auth.accept-invite")

	app.Post(controller.Routes.Invite, controller.CreateInvite, admin).SetName("auth.invite")
	app.Get(controller.Routes.Me, controller.Me, protected).SetName("auth.me")
}

// RegisterRequest payload
type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	a.debugPayload("AUTH REGISTER", payload)

	var result *AuthResult
	req := RegisterUserMessage{
		Email:     payload.Email,
		Phone:     payload.Phone,
		Password:  payload.Password,
		UserAgent: requestUserAgent(ctx),
		IP:        requestIP(ctx),
		OnResponse: func(resp *AuthResult) {
			result = resp
		},
	}

	if err := a.registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user", "error", err)
		return WriteError(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, result.RefreshPlaintext, result.RefreshExpiresAt)

	return ctx.JSON(router.StatusCreated, signedInBody(result))
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	return a.login(ctx, false)
}

// AdminLogin is Login restricted to admin accounts.
func (a *AuthController) AdminLogin(ctx router.Context) error {
	return a.login(ctx, true)
}

func (a *AuthController) login(ctx router.Context, adminOnly bool) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	a.debugPayload("AUTH LOGIN", payload)

	meta := SessionMeta{
		UserAgent: requestUserAgent(ctx),
		IP:        requestIP(ctx),
	}

	var result *AuthResult
	var err error
	if adminOnly {
		result, err = a.Auther.Auther().AdminLogin(ctx.Context(), payload.Email, payload.Password, meta)
	} else {
		result, err = a.Auther.Auther().Login(ctx.Context(), payload.Email, payload.Password, meta)
	}
	if err != nil {
		a.Logger.Error("login", "error", err)
		return WriteError(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, result.RefreshPlaintext, result.RefreshExpiresAt)

	return ctx.JSON(router.StatusOK, signedInBody(result))
}

// Refresh rotates the cookie session and returns a new access token. A
// failed rotation clears the cookie so the client stops replaying a dead
// token.
func (a *AuthController) Refresh(ctx router.Context) error {
	plaintext := a.Auther.RefreshTokenFromRequest(ctx)

	meta := SessionMeta{
		UserAgent: requestUserAgent(ctx),
		IP:        requestIP(ctx),
	}

	result, err := a.Auther.Auther().Refresh(ctx.Context(), plaintext, meta)
	if err != nil {
		a.Auther.ClearRefreshCookie(ctx)
		return WriteError(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, result.RefreshPlaintext, result.RefreshExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": result.AccessToken,
	})
}

// Logout revokes the cookie session. Always succeeds.
func (a *AuthController) Logout(ctx router.Context) error {
	plaintext := a.Auther.RefreshTokenFromRequest(ctx)

	if err := a.Auther.Auther().Logout(ctx.Context(), plaintext); err != nil {
		a.Logger.Error("logout revoke", "error", err)
	}

	a.Auther.ClearRefreshCookie(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{"ok": true})
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("forgot password parse payload", "error", err)
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
	}

	if err := a.resetInit.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("forgot password", "error", err)
		return WriteError(ctx, err)
	}

	// same body whether or not the account exists
	return ctx.JSON(router.StatusOK, map[string]any{
		"ok":      true,
		"message": "If the account exists, a reset link has been sent",
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Email    string `json:"email" form:"email"`
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset password parse payload", "error", err)
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	var result *AuthResult
	req := FinalizePasswordResetMessage{
		Email:     payload.Email,
		Token:     payload.Token,
		Password:  payload.Password,
		UserAgent: requestUserAgent(ctx),
		IP:        requestIP(ctx),
		OnResponse: func(resp *AuthResult) {
			result = resp
		},
	}

	if err := a.resetFinalize.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("reset password", "error", err)
		return WriteError(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, result.RefreshPlaintext, result.RefreshExpiresAt)

	return ctx.JSON(router.StatusOK, signedInBody(result))
}

// CreateInviteRequest payload
type CreateInviteRequest struct {
	Email string `json:"email" form:"email"`
	Role  string `json:"role" form:"role"`
}

// Validate will run validation rules
func (r CreateInviteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Role, validation.In("", string(RoleUser), string(RoleAdmin))),
	)
}

// CreateInvite issues an invite. The route is admin-gated by middleware;
// the requesting admin is recorded on the invite.
func (a *AuthController) CreateInvite(ctx router.Context) error {
	payload := new(CreateInviteRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("create invite parse payload", "error", err)
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	requestedBy := ""
	if claims, ok := GetRouterClaims(ctx, a.Auther.cfg.ContextKey); ok {
		requestedBy = claims.UserID()
	}

	var resp *CreateInviteResponse
	req := CreateInviteMessage{
		Email:       payload.Email,
		Role:        payload.Role,
		RequestedBy: requestedBy,
		OnResponse: func(r *CreateInviteResponse) {
			resp = r
		},
	}

	if err := a.createInvite.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("create invite", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"ok":         true,
		"email":      resp.Invite.Email,
		"role":       resp.Invite.Role,
		"expires_at": resp.Invite.ExpiresAt,
	})
}

// AcceptInviteRequest payload
type AcceptInviteRequest struct {
	Email    string `json:"email" form:"email"`
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r AcceptInviteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) AcceptInvite(ctx router.Context) error {
	payload := new(AcceptInviteRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("accept invite parse payload", "error", err)
		return a.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.validationFailed(ctx, err)
	}

	var result *AuthResult
	req := AcceptInviteMessage{
		Email:     payload.Email,
		Token:     payload.Token,
		Password:  payload.Password,
		UserAgent: requestUserAgent(ctx),
		IP:        requestIP(ctx),
		OnResponse: func(resp *AuthResult) {
			result = resp
		},
	}

	if err := a.acceptInvite.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("accept invite", "error", err)
		return WriteError(ctx, err)
	}

	a.Auther.SetRefreshCookie(ctx, result.RefreshPlaintext, result.RefreshExpiresAt)

	return ctx.JSON(router.StatusOK, signedInBody(result))
}

// Me returns the authenticated user.
func (a *AuthController) Me(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Auther.cfg.ContextKey)
	if !ok {
		return WriteError(ctx, ErrUnableToDecodeSession)
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), claims.UserID())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return WriteError(ctx, ErrIdentityNotFound)
		}
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

func (a *AuthController) badRequest(ctx router.Context, err error) error {
	return WriteError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithCode(goerrors.CodeBadRequest))
}

func (a *AuthController) validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error":      "validation failed",
		"validation": FormatValidationErrorToMap(err),
	})
}

func (a *AuthController) debugPayload(label string, payload any) {
	if !a.Debug {
		return
	}
	fmt.Printf("======= %s ======\n", label)
	fmt.Println(print.MaybePrettyJSON(payload))
	fmt.Println("=========================")
}

func signedInBody(result *AuthResult) map[string]any {
	return map[string]any{
		"token": result.AccessToken,
		"user":  result.User,
	}
}

// ValidatePhoneNumber accepts an empty value or a parseable, valid phone
// number.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}

	return nil
}

func requestUserAgent(ctx router.Context) string {
	return ctx.Header("User-Agent")
}

func requestIP(ctx router.Context) string {
	return ctx.Header("X-Forwarded-For")
}
