// Package typing holds the per-user "is typing" presence state and expires
// it when a user stops renewing it.
package typing

import (
	"log"
	"sync"
	"time"

	"codorachat/pkg/types"
)

// DefaultTimeout is how long a typing state survives without renewal
const DefaultTimeout = 1000 * time.Millisecond

// Emitter receives the typing and stop-typing events the tracker produces.
// It is called with the tracker lock held and must not call back into the tracker.
type Emitter func(event types.Event)

// entry is the sole signal that a user is typing
type entry struct {
	timer      *time.Timer
	generation uint64
}

// Tracker maps username -> typing state with cancel-and-replace expiry timers
// ARCHITECTURAL DISCOVERY: presence of the map entry is the single source of truth;
// every terminal path (explicit stop, expiry, disconnect) must win the entry
// under the lock before it may emit, which yields exactly one stop-typing per state
type Tracker struct {
	mu             sync.Mutex
	entries        map[string]*entry
	typingTimeout  time.Duration
	emit           Emitter
	nextGeneration uint64
}

// NewTracker creates a tracker that expires typing state after typingTimeout
func NewTracker(typingTimeout time.Duration, emit Emitter) (*Tracker, error) {
	if typingTimeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	if emit == nil {
		return nil, ErrNilEmitter
	}
	return &Tracker{
		entries:       make(map[string]*entry),
		typingTimeout: typingTimeout,
		emit:          emit,
	}, nil
}

// Timeout returns the configured expiry duration
func (t *Tracker) Timeout() time.Duration {
	return t.typingTimeout
}

// MarkTyping creates or refreshes the user's typing state.
// Only the transition NotTyping -> Typing emits a typing event; a refresh
// just re-arms the deadline.
func (t *Tracker) MarkTyping(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextGeneration++
	generation := t.nextGeneration

	if existing, ok := t.entries[username]; ok {
		existing.timer.Stop()
		existing.generation = generation
		existing.timer = t.arm(username, generation)
		return
	}

	t.entries[username] = &entry{
		timer:      t.arm(username, generation),
		generation: generation,
	}
	t.emit(types.Event{Type: types.EventTypeTyping, Username: username})
}

// MarkStopped clears the user's typing state. It emits one stop-typing event
// if the user was typing and is a no-op otherwise.
func (t *Tracker) MarkStopped(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[username]
	if !ok {
		return
	}
	existing.timer.Stop()
	t.remove(username)
}

// IsTyping reports whether the user currently has a typing state
func (t *Tracker) IsTyping(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[username]
	return ok
}

// Count returns how many users are typing right now
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Stop cancels all pending expiry timers without emitting.
// Typing state is ephemeral and is simply abandoned on shutdown.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for username, existing := range t.entries {
		existing.timer.Stop()
		delete(t.entries, username)
	}
}

// arm schedules expiry for one generation of a user's entry
func (t *Tracker) arm(username string, generation uint64) *time.Timer {
	return time.AfterFunc(t.typingTimeout, func() {
		t.expire(username, generation)
	})
}

// expire runs on the timer goroutine. A timer that fired after its entry was
// refreshed or removed sees a stale generation and does nothing.
func (t *Tracker) expire(username string, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[username]
	if !ok || existing.generation != generation {
		return
	}
	log.Printf("Typing expired: user=%s", username)
	t.remove(username)
}

// remove deletes the entry and emits the single terminal stop-typing event.
// Caller holds t.mu.
func (t *Tracker) remove(username string) {
	delete(t.entries, username)
	t.emit(types.Event{Type: types.EventTypeStopTyping, Username: username})
}
