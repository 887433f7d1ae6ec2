package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCredentials identifies a failed email/password check.
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeInvalidOrExpiredToken covers unknown, expired, and
	// already-consumed invite/refresh/reset tokens. The cases are
	// deliberately undifferentiated so callers cannot probe which one
	// occurred.
	TextCodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	// TextCodeTokenExpired identifies an access token past its expiry.
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenMalformed identifies an access token that failed parsing.
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	// TextCodeForbidden identifies a role mismatch on a protected route.
	TextCodeForbidden = "FORBIDDEN"
	// TextCodeEmailTaken identifies a duplicate email at registration.
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodeInviteExists identifies an unexpired invite already issued
	// for the target email.
	TextCodeInviteExists = "INVITE_EXISTS"
	// TextCodeAlreadyPrivileged identifies an invite aimed at an account
	// that already holds the target role.
	TextCodeAlreadyPrivileged = "ALREADY_PRIVILEGED"
	// TextCodeTooManyAttempts identifies a login attempt during cooldown.
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrInvalidCredentials is returned when the email/password pair does not
// verify. It never discloses whether the email exists.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the internal comparison failure; the
// gateway surfaces it as ErrInvalidCredentials.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidOrExpiredToken is returned for unknown, expired, replayed, or
// already-consumed refresh/invite/reset tokens.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidOrExpiredToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when an access token's expiry has elapsed.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when an access token fails signature or
// structural validation.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when the authenticated role does not satisfy a
// route's role requirement.
var ErrForbidden = errors.New("insufficient role", errors.CategoryAuth).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrInviteExists is returned when an unexpired invite is already
// outstanding for the email.
var ErrInviteExists = errors.New("an active invite already exists for this email", errors.CategoryConflict).
	WithTextCode(TextCodeInviteExists).
	WithCode(errors.CodeConflict)

// ErrAlreadyPrivileged is returned when inviting an email whose account
// already holds the target role.
var ErrAlreadyPrivileged = errors.New("account already holds the target role", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyPrivileged).
	WithCode(errors.CodeConflict)

// ErrTooManyLoginAttempts is returned while a credential cooldown is active.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoEmptyString rejects empty required inputs (e.g. passwords).
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrUnableToDecodeSession unable to decode JWT claims
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
