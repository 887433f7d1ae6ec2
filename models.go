package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleUser is a regular reader/commenter account
	RoleUser UserRole = "user"
	// RoleAdmin can manage posts and issue invites
	RoleAdmin UserRole = "admin"
)

// User is the credential-store record. It exclusively owns its refresh
// session set and its (at most one) pending password reset.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string            `bun:"email,notnull,unique" json:"email,omitempty"`
	Role           UserRole          `bun:"user_role,notnull" json:"user_role,omitempty"`
	Phone          string            `bun:"phone,nullzero" json:"phone,omitempty"`
	PasswordHash   string            `bun:"password_hash,notnull" json:"-"`
	LoginAttempts  int               `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time        `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time        `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	ResetTokenHash string            `bun:"reset_token_hash,nullzero" json:"-"`
	ResetExpiresAt *time.Time        `bun:"reset_expires_at,nullzero" json:"-"`
	CreatedAt      *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	Sessions       []*RefreshSession `bun:"rel:has-many,join:id=user_id" json:"-"`
}

// Identity adapts the record to the claims-facing Identity interface.
func (u *User) Identity() Identity {
	return authIdentity{
		id:    u.ID.String(),
		email: u.Email,
		role:  string(u.Role),
	}
}

// RefreshSession is one server-tracked long-lived session. Only the
// sha256 digest of the token the client holds is ever persisted.
type RefreshSession struct {
	bun.BaseModel `bun:"table:refresh_sessions,alias:rs"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	UserAgent     string     `bun:"user_agent" json:"user_agent,omitempty"`
	IP            string     `bun:"ip" json:"ip,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
}

// Expired reports whether the session is no longer rotatable at the given
// instant. The boundary is inclusive: a record expiring exactly now is
// expired.
func (s *RefreshSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Invite is a single-use, time-boxed grant allowing an email to become
// (or upgrade to) the target role. It references a target email, not a
// user record: the user may not exist yet.
type Invite struct {
	bun.BaseModel `bun:"table:invites,alias:inv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull" json:"-"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	RequestedBy   string     `bun:"requested_by" json:"requested_by,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	AcceptedAt    *time.Time `bun:"accepted_at,nullzero" json:"accepted_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Expired reports whether the invite can no longer be redeemed; the
// boundary is inclusive, matching refresh sessions and resets.
func (i *Invite) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// NormalizeEmail canonicalizes an email for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
