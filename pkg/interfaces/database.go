package interfaces

import (
	"context"

	"codorachat/pkg/types"
)

// UserStore persists user credentials for the auth collaborator
type UserStore interface {
	// CreateUser inserts a new user; returns ErrUserExists on a duplicate username
	CreateUser(ctx context.Context, user *types.User) error

	// GetUserByUsername returns ErrUserNotFound when no such user exists
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close releases the underlying database
	Close() error
}
