package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection      = errors.New("connection cannot be nil")
	ErrAlreadyClosed      = errors.New("connection closed before admission")
	ErrDuplicateAdmission = errors.New("connection already admitted")
)

// Handler-related errors
var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrAuthRejected = errors.New("authentication rejected")
)
