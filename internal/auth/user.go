package auth

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateUser is returned when a create collides with an existing
	// email or username. Handlers surface it as one undifferentiated
	// "already exists" error so callers cannot probe which field matched.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidToken covers every verification-token failure: unknown,
	// already used, expired, or issued for a different purpose.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrInvalidSession covers malformed, tampered, and expired session tokens.
	ErrInvalidSession = errors.New("invalid session token")
)

type User struct {
	ID            int64
	Email         string
	Username      string
	Name          *string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
}

// TokenType selects the purpose a verification token was issued for.
// Redemption must present the same type the token was created with.
type TokenType string

const (
	TokenEmailVerification TokenType = "EMAIL_VERIFICATION"
	TokenPasswordReset     TokenType = "PASSWORD_RESET"
)

// TTL returns the validity window for newly issued tokens of this type.
func (t TokenType) TTL() time.Duration {
	if t == TokenPasswordReset {
		return 1 * time.Hour
	}
	return 24 * time.Hour
}
