package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService signs and checks the bearer tokens required by the /tasks
// routes.
type JWTService interface {
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken returns the claims of a valid token. Failures wrap
	// ErrMissingToken, ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of a token. UserID owns every task the
// request touches.
type Claims struct {
	UserID    uuid.UUID
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
