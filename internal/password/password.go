// Package password hashes and verifies user credentials with bcrypt.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrCorruptHash indicates a stored credential hash that bcrypt cannot parse.
// A plain mismatch is never an error, only a false result.
var ErrCorruptHash = errors.New("password: corrupt credential hash")

// Hash derives a salted one-way hash of the plaintext password.
func Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Matches compares a plaintext password with a stored hash in constant time.
func Matches(password, hash string) (bool, error) {
	if hash == "" {
		return false, ErrCorruptHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrCorruptHash
	}
}
