package identity

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic address check: one @, non-empty local part,
// a dot in the domain. Full RFC 5322 validation is not attempted.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxEmailLength is the maximum accepted email address length.
const maxEmailLength = 254

// IsValidEmail checks whether an address is acceptable for an account.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Account represents a credential record in the identity service.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
}

// Verifier is the credential-check contract consumed by the session store.
type Verifier interface {
	// VerifyCredentials checks an email/password pair and returns the
	// matching account. Wrong password and unknown email both map to
	// ErrInvalidCredentials so callers cannot probe for registered
	// addresses; rate limiting yields ErrTooManyRequests.
	VerifyCredentials(ctx context.Context, email, password string) (*Account, error)
}

// Sentinel errors for identity operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrEmailInvalid       = errors.New("malformed email address")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrTooManyRequests    = errors.New("too many sign-in attempts")
)
