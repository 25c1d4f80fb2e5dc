package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"codorachat/pkg/interfaces"
	"codorachat/pkg/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// createTestWebSocketConnection dials a test server and returns the client
// socket plus a channel carrying every text frame the server receives.
func createTestWebSocketConnection(t *testing.T) (*websocket.Conn, <-chan []byte) {
	t.Helper()

	received := make(chan []byte, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}

	return conn, received
}

func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Connection = &Connection{}
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, "alice", 0, 0)
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("Expected a generated connection ID")
	}
	if conn.Username() != "alice" {
		t.Errorf("Expected username alice, got %s", conn.Username())
	}
	if cap(conn.writeCh) != defaultBufferSize {
		t.Errorf("Expected write buffer of %d, got %d", defaultBufferSize, cap(conn.writeCh))
	}
	if conn.writeTimeout != defaultWriteTimeout {
		t.Errorf("Expected write timeout %v, got %v", defaultWriteTimeout, conn.writeTimeout)
	}
	if conn.IsClosed() {
		t.Error("New connection should be open")
	}
}

func TestConnection_UniqueIDs(t *testing.T) {
	wsConn1, _ := createTestWebSocketConnection(t)
	wsConn2, _ := createTestWebSocketConnection(t)

	conn1 := NewConnection(wsConn1, "alice", 10, time.Second)
	conn2 := NewConnection(wsConn2, "alice", 10, time.Second)
	defer conn1.Close()
	defer conn2.Close()

	if conn1.ID() == conn2.ID() {
		t.Error("Two connections of the same user must have distinct IDs")
	}
}

func TestConnection_SendDeliversInOrder(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, "alice", 10, time.Second)
	defer conn.Close()

	for _, text := range []string{"one", "two", "three"} {
		if err := conn.Send([]byte(text)); err != nil {
			t.Fatalf("Send(%q) failed: %v", text, err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case got := <-received:
			if string(got) != want {
				t.Errorf("Expected %q, got %q", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %q", want)
		}
	}
}

func TestConnection_WriteJSON(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, "alice", 10, time.Second)
	defer conn.Close()

	if err := conn.WriteJSON(types.Event{Type: types.EventTypeTyping, Username: "alice"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	select {
	case data := <-received:
		var event types.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("Server received invalid JSON: %v", err)
		}
		if event.Type != types.EventTypeTyping || event.Username != "alice" {
			t.Errorf("Unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for JSON frame")
	}

	if err := conn.WriteJSON(make(chan int)); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON for unmarshalable value, got %v", err)
	}
}

func TestConnection_SendBufferFull(t *testing.T) {
	// No writer goroutine, so the buffer never drains
	ctx, cancel := context.WithCancel(context.Background())
	conn := &Connection{
		id:      "slow",
		writeCh: make(chan []byte, 2),
		ctx:     ctx,
		cancel:  cancel,
	}
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := conn.Send([]byte("x")); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	if err := conn.Send([]byte("x")); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("Expected ErrSendBufferFull, got %v", err)
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, "alice", 10, time.Second)

	if err := conn.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if !conn.IsClosed() {
		t.Error("Connection should report closed")
	}
	if err := conn.Send([]byte("late")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed after close, got %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done channel should be closed")
	}
}

func TestConnection_ConcurrentSendAndClose(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, "alice", 50, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := conn.Send([]byte("msg"))
				if err != nil && !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, ErrSendBufferFull) {
					t.Errorf("Unexpected send error: %v", err)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		_ = conn.Close()
	}()

	wg.Wait()

	if !conn.IsClosed() {
		t.Error("Connection should be closed")
	}
}
