package interfaces

import "codorachat/pkg/types"

// EventHandler receives inbound events dispatched by the transport layer
type EventHandler interface {
	// OnMessage fans a chat message out to every admitted connection, the sender included
	OnMessage(senderConnectionID string, msg types.ChatMessage) error

	// OnTyping marks the user as typing
	OnTyping(connectionID, username string) error

	// OnStopTyping clears the user's typing state
	OnStopTyping(connectionID, username string) error

	// OnDisconnect removes the connection and clears typing state when it was the user's last one
	OnDisconnect(connectionID, username string)
}
