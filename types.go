package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Role() string
}

type authIdentity struct {
	id    string
	email string
	role  string
}

func (a authIdentity) ID() string    { return a.id }
func (a authIdentity) Email() string { return a.email }
func (a authIdentity) Role() string  { return a.role }

// SessionMeta is the request provenance recorded with a refresh session.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// AuthResult is the outcome of any operation that signs the caller in:
// login, refresh rotation, invite acceptance, password reset.
type AuthResult struct {
	User             *User
	AccessToken      string
	RefreshPlaintext string
	RefreshExpiresAt time.Time
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Notifier delivers out-of-band messages that carry token links. The
// transport is the caller's concern; the default implementation logs.
type Notifier interface {
	InviteCreated(ctx context.Context, email, link string) error
	PasswordResetRequested(ctx context.Context, email, link string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
