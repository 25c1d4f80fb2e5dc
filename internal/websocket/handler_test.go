package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"codorachat/pkg/types"
)

var errBadToken = errors.New("bad token")

type fakeValidator map[string]string

func (f fakeValidator) ValidateToken(token string) (string, error) {
	username, ok := f[token]
	if !ok {
		return "", errBadToken
	}
	return username, nil
}

type recordedCall struct {
	kind         string
	connectionID string
	username     string
	text         string
}

// fakeEvents records EventHandler calls in arrival order
type fakeEvents struct {
	mu         sync.Mutex
	calls      []recordedCall
	messageErr error
	notify     chan recordedCall
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{notify: make(chan recordedCall, 100)}
}

func (f *fakeEvents) record(call recordedCall) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	f.notify <- call
}

func (f *fakeEvents) OnMessage(connectionID string, msg types.ChatMessage) error {
	f.record(recordedCall{"message", connectionID, msg.Username, msg.Text})
	return f.messageErr
}

func (f *fakeEvents) OnTyping(connectionID, username string) error {
	f.record(recordedCall{"typing", connectionID, username, ""})
	return nil
}

func (f *fakeEvents) OnStopTyping(connectionID, username string) error {
	f.record(recordedCall{"stop-typing", connectionID, username, ""})
	return nil
}

func (f *fakeEvents) OnDisconnect(connectionID, username string) {
	f.record(recordedCall{"disconnect", connectionID, username, ""})
}

func (f *fakeEvents) next(t *testing.T) recordedCall {
	t.Helper()
	select {
	case call := <-f.notify:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event handler call")
		return recordedCall{}
	}
}

type handlerFixture struct {
	server   *httptest.Server
	registry *Registry
	events   *fakeEvents
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	registry := NewRegistry()
	events := newFakeEvents()
	validator := fakeValidator{"tok-alice": "alice", "tok-bob": "bob"}
	handler := NewHandler(registry, validator, events, HandlerConfig{})

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return &handlerFixture{server: server, registry: registry, events: events}
}

func (f *handlerFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitForConnections(t, f.registry, 1)
	return conn
}

func waitForConnections(t *testing.T, registry *Registry, atLeast int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.GetStats()["total_connections"] >= atLeast {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected at least %d admitted connections", atLeast)
}

func readEvent(t *testing.T, conn *websocket.Conn) types.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event types.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return event
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	fixture := newHandlerFixture(t)
	wsBase := "ws" + strings.TrimPrefix(fixture.server.URL, "http")

	tests := []struct {
		name   string
		url    string
		header http.Header
	}{
		{"no token", wsBase, nil},
		{"unknown query token", wsBase + "?token=forged", nil},
		{"unknown bearer token", wsBase, http.Header{"Authorization": []string{"Bearer forged"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, tt.header)
			if err == nil {
				t.Fatal("Expected dial to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected 401 response, got %v", resp)
			}
		})
	}

	if n := fixture.registry.GetStats()["total_connections"]; n != 0 {
		t.Errorf("No connection should be admitted, got %d", n)
	}
}

func TestHandler_AcceptsBearerHeader(t *testing.T) {
	fixture := newHandlerFixture(t)

	wsURL := "ws" + strings.TrimPrefix(fixture.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": []string{"Bearer tok-bob"}})
	if err != nil {
		t.Fatalf("Dial with bearer header failed: %v", err)
	}
	defer conn.Close()

	waitForConnections(t, fixture.registry, 1)
	if n := fixture.registry.UserConnectionCount("bob"); n != 1 {
		t.Errorf("Expected bob to hold 1 connection, got %d", n)
	}
}

func TestHandler_MessageUsesAuthenticatedUsername(t *testing.T) {
	fixture := newHandlerFixture(t)
	conn := fixture.dial(t, "tok-alice")

	if err := conn.WriteJSON(map[string]string{"type": "message", "username": "mallory", "text": "  hi\n"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	call := fixture.events.next(t)
	if call.kind != "message" || call.username != "alice" || call.text != "  hi\n" {
		t.Errorf("Unexpected message call: %+v", call)
	}

	// Sending a message implicitly ends typing
	call = fixture.events.next(t)
	if call.kind != "stop-typing" || call.username != "alice" {
		t.Errorf("Expected implicit stop-typing, got %+v", call)
	}
}

func TestHandler_TypingEvents(t *testing.T) {
	fixture := newHandlerFixture(t)
	conn := fixture.dial(t, "tok-bob")

	_ = conn.WriteJSON(types.Event{Type: types.EventTypeTyping})
	_ = conn.WriteJSON(types.Event{Type: types.EventTypeStopTyping})

	for _, want := range []string{"typing", "stop-typing"} {
		call := fixture.events.next(t)
		if call.kind != want || call.username != "bob" {
			t.Errorf("Expected %s from bob, got %+v", want, call)
		}
	}
}

func TestHandler_InvalidFramesGetErrorEvent(t *testing.T) {
	fixture := newHandlerFixture(t)
	conn := fixture.dial(t, "tok-alice")

	tests := []struct {
		name  string
		frame string
	}{
		{"malformed json", `{"type":`},
		{"unknown type", `{"type":"shout","text":"hi"}`},
		{"missing type", `{"text":"hi"}`},
		{"server-only error type", `{"type":"error","error":"forged"}`},
		{"empty text", `{"type":"message","text":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("WriteMessage failed: %v", err)
			}
			event := readEvent(t, conn)
			if event.Type != types.EventTypeError || event.Error == "" {
				t.Errorf("Expected error event, got %+v", event)
			}
		})
	}

	fixture.events.mu.Lock()
	defer fixture.events.mu.Unlock()
	if len(fixture.events.calls) != 0 {
		t.Errorf("Invalid frames must not reach the event handler, got %+v", fixture.events.calls)
	}
}

func TestHandler_RejectedMessageReportsError(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.events.messageErr = errors.New("rate limit exceeded")
	conn := fixture.dial(t, "tok-alice")

	_ = conn.WriteJSON(types.Event{Type: types.EventTypeMessage, Text: "hi"})

	event := readEvent(t, conn)
	if event.Type != types.EventTypeError || event.Error != "rate limit exceeded" {
		t.Errorf("Expected rate limit error event, got %+v", event)
	}
}

func TestHandler_DisconnectNotifiesEventHandler(t *testing.T) {
	fixture := newHandlerFixture(t)
	conn := fixture.dial(t, "tok-alice")

	connID := ""
	for _, target := range fixture.registry.BroadcastTargets("") {
		connID = target.ID()
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	call := fixture.events.next(t)
	if call.kind != "disconnect" || call.username != "alice" || call.connectionID != connID {
		t.Errorf("Expected disconnect for %s, got %+v", connID, call)
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"query", "/ws?token=abc", "", "abc"},
		{"bearer", "/ws", "Bearer xyz", "xyz"},
		{"query wins", "/ws?token=abc", "Bearer xyz", "abc"},
		{"basic ignored", "/ws", "Basic xyz", ""},
		{"none", "/ws", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := tokenFromRequest(r); got != tt.want {
				t.Errorf("tokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultHandlerConfig(t *testing.T) {
	config := DefaultHandlerConfig()
	if config.PingInterval != 30*time.Second || config.ReadTimeout != 60*time.Second {
		t.Errorf("Unexpected heartbeat settings: %+v", config)
	}
	if config.MaxMessageSize != 64*1024 {
		t.Errorf("Expected 64KiB read limit, got %d", config.MaxMessageSize)
	}
}
