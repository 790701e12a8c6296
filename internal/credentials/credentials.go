// Package credentials hashes and verifies user passwords with bcrypt.
//
// Stored values that do not look like a bcrypt hash are treated as legacy
// plaintext and compared directly, so old records keep working until they
// are upgraded on the next successful login.
package credentials

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches stored. legacy is true when the
// match went through the plaintext path and the record should be rehashed.
func (h *Hasher) Verify(plaintext, stored string) (matched, legacy bool, err error) {
	if !IsHashed(stored) {
		return subtle.ConstantTimeCompare([]byte(plaintext), []byte(stored)) == 1, true, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
	switch {
	case err == nil:
		return true, false, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, false, nil
	default:
		return false, false, fmt.Errorf("verify password: %w", err)
	}
}

// IsHashed reports whether stored carries a bcrypt prefix and a parsable cost.
func IsHashed(stored string) bool {
	if !strings.HasPrefix(stored, "$2a$") &&
		!strings.HasPrefix(stored, "$2b$") &&
		!strings.HasPrefix(stored, "$2y$") {
		return false
	}
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}
