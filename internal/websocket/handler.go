package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"codorachat/pkg/interfaces"
	"codorachat/pkg/types"
)

// HandlerConfig controls per-connection socket behaviour
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultHandlerConfig returns the settings used when none are supplied
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     defaultBufferSize,
		MaxMessageSize: 64 * 1024,
	}
}

// Handler is the session boundary: it authenticates the upgrade request,
// binds the connection to its username and turns inbound frames into
// EventHandler calls.
type Handler struct {
	registry  *Registry
	validator interfaces.TokenValidator
	events    interfaces.EventHandler
	config    HandlerConfig
	upgrader  websocket.Upgrader
}

// NewHandler creates a WebSocket handler. A zero config falls back to DefaultHandlerConfig.
func NewHandler(registry *Registry, validator interfaces.TokenValidator, events interfaces.EventHandler, config HandlerConfig) *Handler {
	if config == (HandlerConfig{}) {
		config = DefaultHandlerConfig()
	}

	return &Handler{
		registry:  registry,
		validator: validator,
		events:    events,
		config:    config,
		upgrader: websocket.Upgrader{
			// Browser clients are served from other origins during development
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// tokenFromRequest reads the token from ?token= or an Authorization: Bearer header
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}

	return ""
}

// HandleWebSocket authenticates and upgrades a chat connection.
// Unauthenticated requests are refused with 401 before the upgrade.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
		return
	}

	username, err := h.validator.ValidateToken(token)
	if err != nil {
		log.Printf("WebSocket auth rejected: remote=%s: %v", r.RemoteAddr, err)
		http.Error(w, ErrAuthRejected.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, username, h.config.BufferSize, h.config.WriteTimeout)

	if err := h.registry.Admit(wsConn); err != nil {
		log.Printf("Failed to admit connection: user=%s: %v", username, err)
		_ = wsConn.Close()
		return
	}

	log.Printf("Client connected: id=%s user=%s", wsConn.ID(), username)

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat for one connection.
// Teardown always reaches the EventHandler exactly once.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		_ = conn.Close()
		h.events.OnDisconnect(conn.ID(), conn.Username())
		log.Printf("Client disconnected: id=%s user=%s", conn.ID(), conn.Username())
	}()

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				// WriteControl may run concurrently with the writer goroutine
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: id=%s: %v", conn.ID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		h.dispatch(conn, data)
	}
}

// dispatch decodes one client frame. Malformed frames are answered with an
// error event to the sender only; they never reach other participants.
func (h *Handler) dispatch(conn *Connection, data []byte) {
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		h.sendError(conn, "invalid event format")
		return
	}

	if !types.IsValidEventType(event.Type) {
		h.sendError(conn, types.ErrUnknownEventType.Error())
		return
	}

	// The authenticated username is canonical; event.Username is ignored.
	username := conn.Username()

	switch event.Type {
	case types.EventTypeMessage:
		msg := types.ChatMessage{Username: username, Text: event.Text}
		if err := msg.Validate(); err != nil {
			h.sendError(conn, err.Error())
			return
		}
		if err := h.events.OnMessage(conn.ID(), msg); err != nil {
			h.sendError(conn, err.Error())
			return
		}
		// Sending a message ends the sender's typing state
		if err := h.events.OnStopTyping(conn.ID(), username); err != nil {
			log.Printf("Failed to clear typing after message: user=%s: %v", username, err)
		}

	case types.EventTypeTyping:
		if err := h.events.OnTyping(conn.ID(), username); err != nil {
			h.sendError(conn, err.Error())
		}

	case types.EventTypeStopTyping:
		if err := h.events.OnStopTyping(conn.ID(), username); err != nil {
			h.sendError(conn, err.Error())
		}
	}
}

func (h *Handler) sendError(conn *Connection, reason string) {
	err := conn.WriteJSON(types.Event{Type: types.EventTypeError, Error: reason})
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		log.Printf("Failed to send error event: id=%s: %v", conn.ID(), err)
	}
}
