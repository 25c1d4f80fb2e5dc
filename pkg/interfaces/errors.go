package interfaces

import "errors"

// Common store errors used across components
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
