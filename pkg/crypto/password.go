package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used when callers pass a non-positive cost.
	DefaultCost = 10
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// ErrPasswordTooLong is returned for passwords over MaxPasswordBytes.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword hashes plaintext using bcrypt with the given cost.
func HashPassword(plain string, cost int) ([]byte, error) {
	if len(plain) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	if cost <= 0 {
		cost = DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	if len(plain) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// IsMismatch reports whether err signals a wrong password rather than a malformed hash.
func IsMismatch(err error) bool {
	return errors.Is(err, bcrypt.ErrMismatchedHashAndPassword)
}
