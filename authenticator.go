package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// Auther composes credential verification, access-token issuing, and
// refresh-session lifecycle into the operations the HTTP gateway calls.
type Auther struct {
	provider     *UserProvider
	sessions     *SessionManager
	tokenService TokenService
	logger       Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider *UserProvider, sessions *SessionManager, tokenService TokenService) *Auther {
	return &Auther{
		provider:     provider,
		sessions:     sessions,
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Sessions returns the refresh session manager.
func (s *Auther) Sessions() *SessionManager {
	return s.sessions
}

// Login verifies the credential pair and, on success, issues an access
// token plus a fresh refresh session. Unknown emails and wrong passwords
// fail identically.
func (s *Auther) Login(ctx context.Context, email, password string, meta SessionMeta) (*AuthResult, error) {
	user, err := s.provider.VerifyUser(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrTooManyLoginAttempts) {
			return nil, err
		}
		s.logger.Debug("login verification failed", "error", err)
		return nil, ErrInvalidCredentials
	}

	// opportunistic cleanup, failure is not a login failure
	if _, err := s.sessions.PruneExpired(ctx); err != nil {
		s.logger.Error("failed to prune expired sessions", "error", err)
	}

	return s.signIn(ctx, user, meta)
}

// AdminLogin is Login restricted to admin accounts. The credential check
// runs first, so a non-admin with valid credentials gets Forbidden, not
// InvalidCredentials.
func (s *Auther) AdminLogin(ctx context.Context, email, password string, meta SessionMeta) (*AuthResult, error) {
	result, err := s.Login(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}

	if !result.User.Role.IsAtLeast(RoleAdmin) {
		if err := s.sessions.Revoke(ctx, result.RefreshPlaintext); err != nil {
			s.logger.Error("failed to revoke session after role rejection", "error", err)
		}
		return nil, ErrForbidden
	}

	return result, nil
}

// Refresh rotates the presented refresh token and mints a new access
// token carrying the user's current role.
func (s *Auther) Refresh(ctx context.Context, plaintext string, meta SessionMeta) (*AuthResult, error) {
	if plaintext == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	// opportunistic cleanup, failure is not a refresh failure
	if _, err := s.sessions.PruneExpired(ctx); err != nil {
		s.logger.Error("failed to prune expired sessions", "error", err)
	}

	result, err := s.sessions.Rotate(ctx, plaintext, meta)
	if err != nil {
		return nil, err
	}

	access, err := s.tokenService.Generate(result.User.Identity())
	if err != nil {
		return nil, err
	}
	result.AccessToken = access

	return result, nil
}

// Logout revokes the presented refresh session. Idempotent: logging out
// with a stale or absent token succeeds.
func (s *Auther) Logout(ctx context.Context, plaintext string) error {
	return s.sessions.Revoke(ctx, plaintext)
}

// SessionFromToken validates an access token and returns its claims.
func (s *Auther) SessionFromToken(raw string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}
	return claims, nil
}

func (s *Auther) signIn(ctx context.Context, user *User, meta SessionMeta) (*AuthResult, error) {
	access, err := s.tokenService.Generate(user.Identity())
	if err != nil {
		return nil, err
	}

	plaintext, record, err := s.sessions.Issue(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:             user,
		AccessToken:      access,
		RefreshPlaintext: plaintext,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}
