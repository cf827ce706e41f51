package mocks

import (
	"errors"
	"sync/atomic"

	"github.com/mumahendras3/packer-server/internal/service/auth"
)

// ErrPasswordMismatch is what MockPasswordVerifier rejects with.
var ErrPasswordMismatch = errors.New("password mismatch")

// MockPasswordVerifier accepts every password when Accept is set and
// rejects every one otherwise. CompareFn overrides both.
type MockPasswordVerifier struct {
	Accept    bool
	CompareFn func(hashedPassword, password string) error

	calls atomic.Int32
}

var _ auth.PasswordVerifier = (*MockPasswordVerifier)(nil)

// Compare implements auth.PasswordVerifier.
func (m *MockPasswordVerifier) Compare(hashedPassword, password string) error {
	m.calls.Add(1)
	switch {
	case m.CompareFn != nil:
		return m.CompareFn(hashedPassword, password)
	case m.Accept:
		return nil
	default:
		return ErrPasswordMismatch
	}
}

// Calls returns how many comparisons were made.
func (m *MockPasswordVerifier) Calls() int {
	return int(m.calls.Load())
}
