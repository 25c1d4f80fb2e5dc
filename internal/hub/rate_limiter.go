package hub

import (
	"sync"
	"time"
)

// staleAfter is how long an idle sender's window is kept before Cleanup drops it
const staleAfter = 5 * time.Minute

// RateLimiter applies a fixed one-minute message window per username
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	senders map[string]*senderWindow
	now     func() time.Time
}

type senderWindow struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit messages per user per minute. A limit <= 0 disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		senders: make(map[string]*senderWindow),
		now:     time.Now,
	}
}

// Allow records one message for username and reports whether it fits the window
func (rl *RateLimiter) Allow(username string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	window, exists := rl.senders[username]
	if !exists || now.Sub(window.windowStart) >= time.Minute {
		rl.senders[username] = &senderWindow{messageCount: 1, windowStart: now}
		return true
	}

	if window.messageCount >= rl.limit {
		return false
	}

	window.messageCount++
	return true
}

// Cleanup forgets senders idle for longer than staleAfter
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for username, window := range rl.senders {
		if now.Sub(window.windowStart) > staleAfter {
			delete(rl.senders, username)
		}
	}
}

// Tracked returns how many senders currently hold a window
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.senders)
}
