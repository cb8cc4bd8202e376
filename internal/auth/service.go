package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// ErrUnknownUser is returned when a token is requested for a user that does not exist.
var ErrUnknownUser = errors.New("unknown user")

// Service issues and verifies tokens for known users.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// IssueToken mints a token for an existing user. Account management lives in the
// user service; this is what `cartchat token` and the tests use.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
