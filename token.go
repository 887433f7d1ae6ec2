package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

const (
	// RefreshTokenBytes is the entropy of an opaque refresh token.
	RefreshTokenBytes = 48
	// LinkTokenBytes is the entropy of invite and password-reset tokens,
	// which travel inside emailed links.
	LinkTokenBytes = 32
)

// GenerateToken returns size bytes of CSPRNG entropy, hex encoded. The
// plaintext goes to the client; only its digest is ever stored.
func GenerateToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token")
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the sha256 hex digest of a token plaintext. The
// digest is the storage and lookup key for refresh sessions, invites,
// and password resets.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
