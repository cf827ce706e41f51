package auth

import "errors"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, unexpected
	// signing methods and claims without a user.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token's exp claim has passed.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token's nbf claim is in the future.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrWeakSecret is returned by NewJWTService for signing keys shorter
	// than MinSecretLength.
	ErrWeakSecret = errors.New("jwt secret is too short")
)
