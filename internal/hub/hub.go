// Package hub fans chat and presence events out to every admitted connection.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"codorachat/internal/typing"
	"codorachat/internal/websocket"
	"codorachat/pkg/types"
)

// Config tunes the hub
type Config struct {
	TypingTimeout     time.Duration
	MessagesPerMinute int // 0 disables rate limiting
	QueueSize         int
	CleanupInterval   time.Duration
}

// DefaultConfig returns the production hub settings
func DefaultConfig() Config {
	return Config{
		TypingTimeout:     typing.DefaultTimeout,
		MessagesPerMinute: 100,
		QueueSize:         1000,
		CleanupInterval:   time.Minute,
	}
}

// Hub implements interfaces.EventHandler.
// ARCHITECTURAL DISCOVERY: every broadcast, including typing events emitted by
// expiry timers, passes through one channel drained by one goroutine, so all
// recipients observe broadcasts in the same order.
type Hub struct {
	broadcastChannel chan types.Event
	shutdownChannel  chan struct{}
	done             chan struct{}

	registry *websocket.Registry
	tracker  *typing.Tracker
	limiter  *RateLimiter
	config   Config

	// Stop-typing events that did not fit in broadcastChannel. They are
	// terminal and must not be lost; run drains them after the queue.
	pendingMu     sync.Mutex
	pendingStops  []string
	pendingSet    map[string]struct{}
	pendingSignal chan struct{}

	broadcasts atomic.Int64
	deliveries atomic.Int64
	dropped    atomic.Int64

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub over registry. Zero config fields take DefaultConfig values.
func NewHub(registry *websocket.Registry, config Config) (*Hub, error) {
	defaults := DefaultConfig()
	if config.TypingTimeout <= 0 {
		config.TypingTimeout = defaults.TypingTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	h := &Hub{
		broadcastChannel: make(chan types.Event, config.QueueSize),
		registry:         registry,
		limiter:          NewRateLimiter(config.MessagesPerMinute),
		config:           config,
		pendingSet:       make(map[string]struct{}),
		pendingSignal:    make(chan struct{}, 1),
	}

	tracker, err := typing.NewTracker(config.TypingTimeout, h.enqueue)
	if err != nil {
		return nil, err
	}
	h.tracker = tracker

	return h, nil
}

// Start begins broadcast processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})

	log.Println("Starting message hub...")

	go h.run(ctx, h.shutdownChannel, h.done)

	return nil
}

// Stop ends broadcast processing and abandons pending typing timers
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping message hub...")

	<-done
	h.tracker.Stop()

	return nil
}

// IsRunning reports whether the run loop is active
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Tracker exposes the typing tracker owned by the hub
func (h *Hub) Tracker() *typing.Tracker {
	return h.tracker
}

// OnMessage broadcasts msg to every connection, the sender's own included.
// Clients recognise their own messages by the username field.
func (h *Hub) OnMessage(senderConnectionID string, msg types.ChatMessage) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	if _, exists := h.registry.GetConnection(senderConnectionID); !exists {
		return ErrSenderNotConnected
	}

	if !h.limiter.Allow(msg.Username) {
		log.Printf("Rate limit exceeded: user=%s", msg.Username)
		return ErrRateLimitExceeded
	}

	select {
	case h.broadcastChannel <- msg.Event():
		return nil
	default:
		return ErrBroadcastChannelFull
	}
}

// OnTyping marks username as typing; only the first mark of a typing state is broadcast
func (h *Hub) OnTyping(connectionID, username string) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	h.tracker.MarkTyping(username)
	return nil
}

// OnStopTyping ends username's typing state if there is one
func (h *Hub) OnStopTyping(connectionID, username string) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	h.tracker.MarkStopped(username)
	return nil
}

// OnDisconnect removes the connection. Losing the user's last connection also
// ends their typing state so no indicator outlives the user.
func (h *Hub) OnDisconnect(connectionID, username string) {
	// The registry's record of the owner wins over the caller's
	username, remaining, removed := h.registry.Remove(connectionID)
	if !removed {
		return
	}

	// A device admitted since Remove keeps the typing state alive. The window
	// is not closed entirely; the client re-announces on its next keystroke.
	if remaining == 0 && h.registry.UserConnectionCount(username) == 0 {
		h.tracker.MarkStopped(username)
	}
}

// enqueue is the tracker's emitter. It runs under the tracker lock and must not block.
// A typing event may be dropped when the queue is full; a stop-typing event never is.
func (h *Hub) enqueue(event types.Event) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	_, stopPending := h.pendingSet[event.Username]

	if event.Type == types.EventTypeStopTyping {
		if stopPending {
			// The pending stop already ends this user's indicator
			return
		}
		select {
		case h.broadcastChannel <- event:
			return
		default:
		}
		h.pendingSet[event.Username] = struct{}{}
		h.pendingStops = append(h.pendingStops, event.Username)
		select {
		case h.pendingSignal <- struct{}{}:
		default:
		}
		log.Printf("Broadcast channel full, deferring stop-typing: user=%s", event.Username)
		return
	}

	// A typing event queued now could overtake the pending stop
	if !stopPending {
		select {
		case h.broadcastChannel <- event:
			return
		default:
		}
	}
	h.dropped.Add(1)
	log.Printf("Broadcast channel full, dropping event: type=%s user=%s", event.Type, event.Username)
}

// flushPending delivers the events queued ahead of the deferred stops, then the stops
func (h *Hub) flushPending() {
	for n := len(h.broadcastChannel); n > 0; n-- {
		select {
		case event := <-h.broadcastChannel:
			h.handleBroadcast(event)
		default:
			n = 0
		}
	}

	h.pendingMu.Lock()
	usernames := h.pendingStops
	h.pendingStops = nil
	h.pendingSet = make(map[string]struct{})
	h.pendingMu.Unlock()

	for _, username := range usernames {
		h.handleBroadcast(types.Event{Type: types.EventTypeStopTyping, Username: username})
	}
}

// run is the single broadcast loop
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer log.Println("Hub processing stopped")

	cleanup := time.NewTicker(h.config.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case event := <-h.broadcastChannel:
			h.handleBroadcast(event)

		case <-h.pendingSignal:
			h.flushPending()

		case <-cleanup.C:
			h.limiter.Cleanup()

		case <-shutdown:
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			owned := h.shutdownChannel == shutdown && h.running
			if owned {
				h.running = false
			}
			h.mu.Unlock()
			if owned {
				h.tracker.Stop()
			}
			return
		}
	}
}

// handleBroadcast encodes event once and hands it to every target.
// A failing recipient is skipped; a recipient whose buffer is full is dropped.
func (h *Hub) handleBroadcast(event types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode broadcast: type=%s: %v", event.Type, err)
		return
	}

	h.broadcasts.Add(1)

	for _, conn := range h.registry.BroadcastTargets("") {
		err := conn.Send(data)
		switch {
		case err == nil:
			h.deliveries.Add(1)
		case errors.Is(err, websocket.ErrConnectionClosed):
			// closed between snapshot and send
		case errors.Is(err, websocket.ErrSendBufferFull):
			log.Printf("Slow client dropped: id=%s user=%s", conn.ID(), conn.Username())
			_ = conn.Close()
		default:
			log.Printf("Send failed: id=%s user=%s: %v", conn.ID(), conn.Username(), err)
		}
	}
}

// GetStats returns hub statistics for monitoring
func (h *Hub) GetStats() map[string]int64 {
	stats := map[string]int64{
		"broadcasts":     h.broadcasts.Load(),
		"deliveries":     h.deliveries.Load(),
		"dropped_events": h.dropped.Load(),
		"pending_stops":  int64(h.pendingCount()),
		"typing_users":   int64(h.tracker.Count()),
		"queued_events":  int64(len(h.broadcastChannel)),
	}
	for key, value := range h.registry.GetStats() {
		stats[key] = int64(value)
	}
	return stats
}

func (h *Hub) pendingCount() int {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return len(h.pendingStops)
}
