package hub

import "errors"

// Hub errors surfaced to the session boundary
var (
	ErrHubAlreadyRunning    = errors.New("hub is already running")
	ErrHubNotRunning        = errors.New("hub is not running")
	ErrSenderNotConnected   = errors.New("sender not connected")
	ErrBroadcastChannelFull = errors.New("broadcast channel is full")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
)
