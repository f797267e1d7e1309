package user

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/schoolms/backend/core"
)

const (
	// PasswordCost is the bcrypt work factor; every hash carries its own random salt.
	PasswordCost = bcrypt.DefaultCost

	// PasswordMaxBytes is the longest input bcrypt accepts.
	PasswordMaxBytes = 72
)

var ErrPasswordTooLong = core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdMaxLenText})

// HashPassword derives a salted bcrypt hash from a plaintext password.
// Values that already are bcrypt hashes are refused so a hash is never hashed again.
func HashPassword(pwd string) ([]byte, error) {
	if IsPasswordHash([]byte(pwd)) {
		return nil, ErrPasswordHashed
	}
	if len(pwd) > PasswordMaxBytes {
		return nil, ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), PasswordCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	return hash, err
}

// VerifyPassword reports whether pwd matches hash. A malformed hash never matches.
func VerifyPassword(hash []byte, pwd string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(pwd)) == nil
}

// IsPasswordHash reports whether b is a well-formed bcrypt hash.
func IsPasswordHash(b []byte) bool {
	_, err := bcrypt.Cost(b)
	return err == nil
}
