package types

import (
	"regexp"
	"strings"
)

const (
	// MaxMessageLength bounds the text of a single chat message as sent
	MaxMessageLength = 4096

	MinPasswordLength = 6
	// bcrypt ignores everything after 72 bytes
	MaxPasswordLength = 72
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks the text is non-blank and bounded. The text itself is
// left untouched so it is broadcast exactly as sent.
func (m *ChatMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	if len(m.Text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !IsValidUsername(m.Username) {
		return ErrInvalidUsername
	}
	return nil
}

// Validate checks the username format and password length
func (c *Credentials) Validate() error {
	c.Username = strings.TrimSpace(c.Username)
	if !IsValidUsername(c.Username) {
		return ErrInvalidUsername
	}
	if len(c.Password) < MinPasswordLength || len(c.Password) > MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// IsValidUsername checks if a username meets format requirements
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 50 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// IsValidEventType reports whether a client may send this event type
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventTypeMessage, EventTypeTyping, EventTypeStopTyping:
		return true
	default:
		return false
	}
}
