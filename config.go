package auth

import (
	"time"

	"github.com/goliatone/go-errors"
)

// Config holds every tunable of the auth subsystem. It is constructed
// once at startup, validated, and passed by reference; nothing reads the
// environment after boot.
type Config struct {
	// SigningKey signs access tokens. The process must refuse to start
	// without it; see Validate.
	SigningKey string `env:"ACCESS_TOKEN_SECRET"`

	// AccessTokenExpiration is the access token TTL in minutes.
	AccessTokenExpiration int `env:"ACCESS_TOKEN_EXPIRES_MINUTES" envDefault:"15"`

	// RefreshExpirationDays is the refresh session TTL in days.
	RefreshExpirationDays int `env:"REFRESH_EXPIRES_DAYS" envDefault:"30"`

	// InviteExpirationHours is the invite TTL in hours.
	InviteExpirationHours int `env:"INVITE_EXPIRES_HOURS" envDefault:"24"`

	// ResetExpirationHours is the password reset TTL in hours.
	ResetExpirationHours int `env:"RESET_TOKEN_EXPIRES_HOURS" envDefault:"1"`

	// RefreshCookieName names the HTTP-only cookie carrying the refresh
	// token plaintext.
	RefreshCookieName string `env:"REFRESH_COOKIE_NAME" envDefault:"jid"`

	// CookieSecure marks the refresh cookie Secure. Enable outside of
	// local development.
	CookieSecure bool `env:"COOKIE_SECURE"`

	Issuer   string   `env:"TOKEN_ISSUER"`
	Audience []string `env:"TOKEN_AUDIENCE" envSeparator:","`

	// ContextKey is where the middleware stores validated claims.
	ContextKey  string `env:"AUTH_CONTEXT_KEY" envDefault:"user"`
	TokenLookup string `env:"AUTH_TOKEN_LOOKUP" envDefault:"header:Authorization"`
	AuthScheme  string `env:"AUTH_SCHEME" envDefault:"Bearer"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// FrontendURL prefixes the accept-invite and reset-password links
	// handed to the notifier.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	Debug bool `env:"AUTH_DEBUG"`
}

// Validate enforces the startup invariants. A missing signing key is a
// configuration error the caller should treat as fatal.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return errors.New("ACCESS_TOKEN_SECRET must be set", errors.CategoryValidation).
			WithCode(errors.CodeInternal)
	}
	if c.AccessTokenExpiration <= 0 {
		c.AccessTokenExpiration = 15
	}
	if c.RefreshExpirationDays <= 0 {
		c.RefreshExpirationDays = 30
	}
	if c.InviteExpirationHours <= 0 {
		c.InviteExpirationHours = 24
	}
	if c.ResetExpirationHours <= 0 {
		c.ResetExpirationHours = 1
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = "jid"
	}
	if c.ContextKey == "" {
		c.ContextKey = "user"
	}
	return nil
}

// GetSigningKey returns the raw signing key bytes.
func (c *Config) GetSigningKey() []byte {
	return []byte(c.SigningKey)
}

// AccessTokenTTL is the access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiration) * time.Minute
}

// RefreshTTL is the refresh session lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpirationDays) * 24 * time.Hour
}

// InviteTTL is the invite lifetime.
func (c *Config) InviteTTL() time.Duration {
	return time.Duration(c.InviteExpirationHours) * time.Hour
}

// ResetTTL is the password reset lifetime.
func (c *Config) ResetTTL() time.Duration {
	return time.Duration(c.ResetExpirationHours) * time.Hour
}
