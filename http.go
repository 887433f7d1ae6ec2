package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-blog-auth/middleware/jwtware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator owns the HTTP-facing half of the session lifecycle:
// the refresh cookie and the bearer-token middleware for protected
// routes.
type RouteAuthenticator struct {
	auth         *Auther
	cfg          *Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther *Auther, cfg *Config) (*RouteAuthenticator, error) {
	if auther == nil {
		return nil, errors.New("http authenticator requires an Auther", errors.CategoryInternal)
	}
	if cfg == nil {
		return nil, errors.New("http authenticator requires a Config", errors.CategoryInternal)
	}

	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// Auther exposes the underlying authenticator.
func (a *RouteAuthenticator) Auther() *Auther {
	return a.auth
}

// SetRefreshCookie delivers the refresh token plaintext to the client.
// The cookie is invisible to scripts and never rides cross-site requests.
func (a *RouteAuthenticator) SetRefreshCookie(c router.Context, plaintext string, expiresAt time.Time) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.RefreshCookieName,
		Value:    plaintext,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HTTPOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: "Strict",
	})
}

// ClearRefreshCookie expires the refresh cookie.
func (a *RouteAuthenticator) ClearRefreshCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: "Strict",
	})
}

// RefreshTokenFromRequest reads the refresh token plaintext off the
// request cookie. Empty means the client holds no session.
func (a *RouteAuthenticator) RefreshTokenFromRequest(c router.Context) string {
	return c.Cookies(a.cfg.RefreshCookieName)
}

// ProtectedRoute requires a valid access token on the route.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(errorHandler, "")
}

// AdminRoute requires a valid access token carrying at least the admin
// role.
func (a *RouteAuthenticator) AdminRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(errorHandler, string(RoleAdmin))
}

func (a *RouteAuthenticator) protected(errorHandler func(router.Context, error) error, minRole string) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.MakeAuthErrorHandler()
	}
	return jwtware.New(jwtware.Config{
		ErrorHandler: errorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    a.cfg.GetSigningKey(),
			JWTAlg: "HS256",
		},
		AuthScheme:     a.cfg.AuthScheme,
		ContextKey:     a.cfg.ContextKey,
		TokenLookup:    a.cfg.TokenLookup,
		MinimumRole:    minRole,
		TokenValidator: tokenValidatorAdapter{a.auth.TokenService()},
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, ac)
			}
			return ctx
		},
	})
}

// tokenValidatorAdapter narrows TokenService to the middleware's
// validator interface.
type tokenValidatorAdapter struct {
	svc TokenService
}

func (t tokenValidatorAdapter) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := t.svc.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// MakeAuthErrorHandler maps token failures to the JSON error envelope.
func (a *RouteAuthenticator) MakeAuthErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else if isRoleDeniedError(err) {
			richErr = ErrForbidden
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	return WriteError(c, err)
}

// WriteError renders any error as the JSON error envelope, mapping
// structured errors to their HTTP status.
func WriteError(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	body := map[string]any{
		"error": richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.JSON(status, body)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func isRoleDeniedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "access denied")
}
