package service

import "errors"

// Sentinel errors returned by the services. The API layer maps them to HTTP
// status codes; callers check them with errors.Is.
var (
	// ErrInvalidCredentials is returned by Authenticate for an unknown email
	// or a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
)
