package types

import (
	"time"
)

// Wire event type constants shared by clients and the hub
const (
	EventTypeMessage    = "message"
	EventTypeTyping     = "typing"
	EventTypeStopTyping = "stop-typing"
	EventTypeError      = "error"
)

// Event is the single JSON frame exchanged over a chat connection.
// Text is only meaningful for message events; Error only for error events.
type Event struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChatMessage is one unit of conversation. It is built on receipt,
// handed to the hub and dropped once fan-out completes.
type ChatMessage struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Event converts the message into its wire frame
func (m ChatMessage) Event() Event {
	return Event{
		Type:     EventTypeMessage,
		Username: m.Username,
		Text:     m.Text,
	}
}

// User is a registered account as held by the credential store
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Credentials is the body of the register and login requests
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
