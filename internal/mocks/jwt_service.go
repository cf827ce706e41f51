package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/service/auth"
)

// MockJWTService implements auth.JWTService for testing
type MockJWTService struct {
	GenerateTokenFn func(ctx context.Context, userID uuid.UUID) (string, error)
	ValidateTokenFn func(ctx context.Context, tokenString string) (*auth.Claims, error)

	// Default values used when the functions aren't set
	Token       string
	Err         error
	ValidateErr error
	Claims      *auth.Claims
}

var _ auth.JWTService = (*MockJWTService)(nil)

// GenerateToken implements the auth.JWTService interface
func (m *MockJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, userID)
	}
	return m.Token, m.Err
}

// ValidateToken implements the auth.JWTService interface
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return m.Claims, m.ValidateErr
}

// TokenFor returns a MockJWTService that accepts only token, as userID.
func TokenFor(token string, userID uuid.UUID) *MockJWTService {
	return &MockJWTService{
		Token: token,
		ValidateTokenFn: func(_ context.Context, got string) (*auth.Claims, error) {
			if got != token {
				return nil, auth.ErrInvalidToken
			}
			return &auth.Claims{UserID: userID, Subject: userID.String()}, nil
		},
	}
}
