package identity

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrWeakPassword indicates the password does not meet the minimum length.
	ErrWeakPassword = errors.New("identity: password too short")
	// ErrPasswordTooLong indicates a password bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("identity: password too long")
	// ErrInvalidResetToken indicates an expired, tampered or already used reset token.
	ErrInvalidResetToken = errors.New("identity: invalid reset token")
)

// Password length bounds. The upper one is in bytes, the bcrypt input limit.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

func checkPassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrWeakPassword
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// Principal is an authenticated identity.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type credential struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	DisplayName  string    `json:"displayName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
