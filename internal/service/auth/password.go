package auth

import "golang.org/x/crypto/bcrypt"

// PasswordVerifier checks a login attempt against a stored hash.
type PasswordVerifier interface {
	Compare(hashedPassword, password string) error
}

// BcryptVerifier checks bcrypt hashes as written by the user store.
type BcryptVerifier struct{}

// NewBcryptVerifier returns a BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare returns bcrypt.ErrMismatchedHashAndPassword for a wrong password
// and another error for a malformed hash.
func (BcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

var _ PasswordVerifier = BcryptVerifier{}
