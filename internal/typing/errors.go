package typing

import "errors"

var (
	ErrInvalidTimeout = errors.New("typing timeout must be positive")
	ErrNilEmitter     = errors.New("typing emitter cannot be nil")
)
