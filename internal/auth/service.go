package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"codorachat/pkg/interfaces"
	"codorachat/pkg/types"
)

// Service is the credential collaborator: it owns registration, login and
// token verification. The chat core only ever sees ValidateToken.
type Service struct {
	store  interfaces.UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewService creates an auth service
func NewService(store interfaces.UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates an account and returns a signed token plus the canonical username
func (s *Service) Register(ctx context.Context, username, password string) (string, string, error) {
	creds := types.Credentials{Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return "", "", err
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Username:     creds.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrUserExists) {
			return "", "", ErrUserAlreadyExists
		}
		return "", "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.Issue(userRef{ID: user.ID, Username: user.Username})
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	log.Printf("User registered: username=%s", user.Username)
	return token, user.Username, nil
}

// Login verifies credentials and returns a signed token plus the canonical username
func (s *Service) Login(ctx context.Context, username, password string) (string, string, error) {
	creds := types.Credentials{Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return "", "", ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(creds.Password, user.PasswordHash) {
		return "", "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(userRef{ID: user.ID, Username: user.Username})
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	return token, user.Username, nil
}

// ValidateToken returns the username carried by a valid, unexpired token
func (s *Service) ValidateToken(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}
