package interfaces

import "context"

// TokenValidator proves the identity of a connecting client.
// Expiry and signature policy belong to the implementation.
type TokenValidator interface {
	// ValidateToken returns the canonical username carried by a valid token
	ValidateToken(token string) (string, error)
}

// Authenticator issues tokens for the HTTP boundary
type Authenticator interface {
	TokenValidator

	// Register creates an account and returns a token plus the canonical username
	Register(ctx context.Context, username, password string) (token string, canonical string, err error)

	// Login verifies credentials and returns a token plus the canonical username
	Login(ctx context.Context, username, password string) (token string, canonical string, err error)
}
