// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// MinLength is the shortest accepted password. bcrypt itself caps input at 72 bytes.
const MinLength = 8

// Hasher implements ports.PasswordHasher.
type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher; a non-positive cost selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Validate checks password length rules without hashing.
func Validate(pw string) error {
	if len(pw) < MinLength {
		return fmt.Errorf("password must be at least %d characters: %w", MinLength, domain.ErrInvalidInput)
	}
	if len(pw) > 72 {
		return fmt.Errorf("password must be at most 72 bytes: %w", domain.ErrInvalidInput)
	}
	return nil
}

// Hash returns the bcrypt hash of pw.
func (h *Hasher) Hash(pw string) (string, error) {
	if pw == "" {
		return "", fmt.Errorf("password cannot be empty: %w", domain.ErrInvalidInput)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("password is too long: %w", domain.ErrInvalidInput)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Compare returns nil when pw matches hash, domain.ErrInvalidCredentials on a
// mismatch and a wrapped error when the hash itself is unusable.
func (h *Hasher) Compare(hash, pw string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domain.ErrInvalidCredentials
	default:
		return fmt.Errorf("verify password: %w", err)
	}
}
