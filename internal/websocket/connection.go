package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultBufferSize   = 100
	defaultWriteTimeout = 10 * time.Second
)

// Connection implements the interfaces.Connection interface over a gorilla socket
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so every frame
// goes through writeCh to the single writer goroutine
type Connection struct {
	id           string
	conn         *websocket.Conn
	username     string      // bound at creation, never changes
	writeCh      chan []byte // bounded; a full buffer marks a slow consumer
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded socket for an authenticated user and starts its writer
func NewConnection(conn *websocket.Conn, username string, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		username:     username,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine that writes data frames to the socket
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write failed: id=%s user=%s: %v", c.id, c.username, err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection identifier
func (c *Connection) ID() string {
	return c.id
}

// Username returns the authenticated username
func (c *Connection) Username() string {
	return c.username
}

// Send queues an encoded frame. It never blocks: a full buffer returns
// ErrSendBufferFull and the caller decides whether to drop the client.
func (c *Connection) Send(data []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// WriteJSON marshals v and queues it with Send
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// IsClosed reports whether the connection has been torn down
func (c *Connection) IsClosed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the socket; later calls are no-ops
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is torn down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
