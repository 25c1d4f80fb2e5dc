package types

import "errors"

// Validation errors returned by the wire and account types
var (
	ErrInvalidUsername  = errors.New("username must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidPassword  = errors.New("password must be 6-72 characters")
	ErrEmptyMessage     = errors.New("message text cannot be empty")
	ErrMessageTooLong   = errors.New("message text exceeds 4096 bytes")
	ErrUnknownEventType = errors.New("unknown event type")
)
